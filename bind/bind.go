/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package bind implements resource binding and legacy session
// establishment: after authentication, bind a resource to the
// negotiated JID and, if the server offers it, establish a session.
package bind

import (
	"errors"

	"github.com/nathan130200/goloox/jid"
	"github.com/nathan130200/goloox/stanza"
	"github.com/pborman/uuid"
)

// BindNamespace is RFC 6120's resource binding namespace.
const BindNamespace = "urn:ietf:params:xml:ns:xmpp-bind"

// SessionNamespace is RFC 3921's (deprecated but still widely
// deployed) session establishment namespace.
const SessionNamespace = "urn:ietf:params:xml:ns:xmpp-session"

// ErrMissingJID is returned by ParseResult when the server's bind
// result carries no <jid> child to adopt.
var ErrMissingJID = errors.New("bind: result carries no jid")

// NewRequest builds the <iq type='set'><bind><resource>...</resource>
// </bind></iq> resource-binding request. An empty resource omits the
// <resource> child, letting the server assign one.
func NewRequest(id, resource string) *stanza.Tag {
	iq := stanza.NewIQ(stanza.IQSet, id)
	bindTag := stanza.NewTagNS("bind", BindNamespace)
	if resource != "" {
		resourceTag := stanza.NewTag("resource")
		resourceTag.SetText(resource)
		bindTag.AppendTag(resourceTag)
	}
	iq.AppendTag(bindTag)
	return iq
}

// GenerateResource produces a server-style fallback resourcepart when
// the caller has none to offer.
func GenerateResource() string {
	return "goloox-" + uuid.New()
}

// ParseResult extracts the full JID the server assigned from a bind
// <iq type='result'>.
func ParseResult(result *stanza.Tag) (*jid.JID, error) {
	bindTag := result.ChildNamespace("bind", BindNamespace)
	if bindTag == nil {
		return nil, ErrMissingJID
	}
	jidTag := bindTag.Child("jid")
	if jidTag == nil || jidTag.Text() == "" {
		return nil, ErrMissingJID
	}
	return jid.FromString(jidTag.Text())
}

// NewSessionRequest builds the legacy <iq type='set'><session/></iq>
// session-establishment request.
func NewSessionRequest(id string) *stanza.Tag {
	iq := stanza.NewIQ(stanza.IQSet, id)
	iq.AppendTag(stanza.NewTagNS("session", SessionNamespace))
	return iq
}
