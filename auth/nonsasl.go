/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package auth implements the legacy jabber:iq:auth fallback used
// when no SASL mechanism is available: a two-round IQ exchange that
// requests the fields the server accepts, then submits either a
// plaintext password or a SHA-1 digest of the stream id and password,
// preferring the digest whenever the server's field list offers it.
package auth

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/nathan130200/goloox/stanza"
)

// Namespace is the legacy authentication namespace.
const Namespace = "jabber:iq:auth"

// NewFieldsRequest builds the initial <iq type='get'> that asks the
// server which credential fields it accepts for username, addressed
// to the server itself (an empty to-server JID, i.e. the bare
// server domain, per nonsaslauth.cpp's IQ(IQ::Get, jid().server(),
// ...)).
func NewFieldsRequest(id, server, username string) *stanza.Tag {
	iq := stanza.NewIQ(stanza.IQGet, id)
	iq.SetAttribute("to", server)
	query := stanza.NewTagNS("query", Namespace)
	usernameTag := stanza.NewTag("username")
	usernameTag.SetText(username)
	query.AppendTag(usernameTag)
	iq.AppendTag(query)
	return iq
}

// supportsDigest reports whether fieldsResult (the <iq type='result'>
// to a fields request) lists "digest" as an acceptable field.
func supportsDigest(fieldsResult *stanza.Tag) bool {
	query := fieldsResult.Child("query")
	return query != nil && query.Child("digest") != nil
}

// BuildResponse builds the follow-up <iq type='set'> carrying either a
// digest or plaintext password, preferring the digest whenever
// fieldsResult offers it and a non-empty streamID is available to
// seed it with (an empty streamID cannot happen in practice — every
// stream header carries one — but the digest path is skipped
// defensively rather than sent malformed).
func BuildResponse(id, username, resource, password, streamID string, fieldsResult *stanza.Tag) *stanza.Tag {
	iq := stanza.NewIQ(stanza.IQSet, id)
	query := stanza.NewTagNS("query", Namespace)

	usernameTag := stanza.NewTag("username")
	usernameTag.SetText(username)
	query.AppendTag(usernameTag)

	resourceTag := stanza.NewTag("resource")
	resourceTag.SetText(resource)
	query.AppendTag(resourceTag)

	if streamID != "" && supportsDigest(fieldsResult) {
		digestTag := stanza.NewTag("digest")
		digestTag.SetText(Digest(streamID, password))
		query.AppendTag(digestTag)
	} else {
		passwordTag := stanza.NewTag("password")
		passwordTag.SetText(password)
		query.AppendTag(passwordTag)
	}

	iq.AppendTag(query)
	return iq
}

// Digest computes the legacy SHA-1 credential SHA1(streamID‖password)
// hex-encoded, exactly as nonsaslauth.cpp's SHA helper feeds the
// stream id then the password before finalizing.
func Digest(streamID, password string) string {
	h := sha1.New()
	h.Write([]byte(streamID))
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}

// Failure classifies a legacy-auth <iq type='error'> response, mirror
// of nonsaslauth.cpp's handleIqID error switch (conflict / not
// acceptable / not authorized, by either child element or legacy
// numeric code attribute).
type Failure int

const (
	FailureUnknown Failure = iota
	FailureConflict
	FailureNotAcceptable
	FailureNotAuthorized
)

// ClassifyFailure inspects an <iq type='error'> response's <error>
// child and returns which of the three legacy-auth failure kinds it
// represents.
func ClassifyFailure(errorIQ *stanza.Tag) Failure {
	errTag := errorIQ.Child("error")
	if errTag == nil {
		return FailureUnknown
	}
	switch {
	case errTag.Child("conflict") != nil || errTag.Attr("code") == "409":
		return FailureConflict
	case errTag.Child("not-acceptable") != nil || errTag.Attr("code") == "406":
		return FailureNotAcceptable
	case errTag.Child("not-authorized") != nil || errTag.Attr("code") == "401":
		return FailureNotAuthorized
	default:
		return FailureUnknown
	}
}
