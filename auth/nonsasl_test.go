/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"testing"

	"github.com/nathan130200/goloox/stanza"
	"github.com/stretchr/testify/require"
)

func TestNewFieldsRequest(t *testing.T) {
	iq := NewFieldsRequest("auth1", "example.com", "juliet")
	require.Equal(t, "get", iq.Attr("type"))
	require.Equal(t, "example.com", iq.Attr("to"))
	query := iq.Child("query")
	require.NotNil(t, query)
	require.Equal(t, Namespace, query.Namespace())
	require.Equal(t, "juliet", query.Child("username").Text())
}

func TestBuildResponsePrefersDigestWhenOffered(t *testing.T) {
	fieldsResult := stanza.NewIQ(stanza.IQResult, "auth1")
	query := stanza.NewTagNS("query", Namespace)
	query.AppendTag(stanza.NewTag("username"))
	query.AppendTag(stanza.NewTag("password"))
	query.AppendTag(stanza.NewTag("digest"))
	query.AppendTag(stanza.NewTag("resource"))
	fieldsResult.AppendTag(query)

	iq := BuildResponse("auth2", "juliet", "balcony", "s3cr3t", "stream-id-1", fieldsResult)
	q := iq.Child("query")
	require.NotNil(t, q)
	require.Nil(t, q.Child("password"))
	digest := q.Child("digest")
	require.NotNil(t, digest)
	require.Equal(t, Digest("stream-id-1", "s3cr3t"), digest.Text())
}

func TestBuildResponseFallsBackToPassword(t *testing.T) {
	fieldsResult := stanza.NewIQ(stanza.IQResult, "auth1")
	query := stanza.NewTagNS("query", Namespace)
	query.AppendTag(stanza.NewTag("password"))
	fieldsResult.AppendTag(query)

	iq := BuildResponse("auth2", "juliet", "balcony", "s3cr3t", "stream-id-1", fieldsResult)
	q := iq.Child("query")
	require.Nil(t, q.Child("digest"))
	require.Equal(t, "s3cr3t", q.Child("password").Text())
}

func TestClassifyFailure(t *testing.T) {
	mk := func(child string, code string) *stanza.Tag {
		iq := stanza.NewIQ(stanza.IQError, "x")
		errTag := stanza.NewTag("error")
		if code != "" {
			errTag.SetAttribute("code", code)
		}
		if child != "" {
			errTag.AppendTag(stanza.NewTag(child))
		}
		iq.AppendTag(errTag)
		return iq
	}
	require.Equal(t, FailureConflict, ClassifyFailure(mk("conflict", "")))
	require.Equal(t, FailureNotAcceptable, ClassifyFailure(mk("", "406")))
	require.Equal(t, FailureNotAuthorized, ClassifyFailure(mk("not-authorized", "")))
	require.Equal(t, FailureUnknown, ClassifyFailure(mk("", "")))
}
