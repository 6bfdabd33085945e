/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bind

import (
	"testing"

	"github.com/nathan130200/goloox/stanza"
	"github.com/stretchr/testify/require"
)

func TestNewRequestWithResource(t *testing.T) {
	iq := NewRequest("bind1", "balcony")
	require.Equal(t, "set", iq.Attr("type"))
	bindTag := iq.Child("bind")
	require.NotNil(t, bindTag)
	require.Equal(t, BindNamespace, bindTag.Namespace())
	require.Equal(t, "balcony", bindTag.Child("resource").Text())
}

func TestNewRequestWithoutResourceOmitsChild(t *testing.T) {
	iq := NewRequest("bind1", "")
	bindTag := iq.Child("bind")
	require.Nil(t, bindTag.Child("resource"))
}

func TestParseResult(t *testing.T) {
	result := stanza.NewIQ(stanza.IQResult, "bind1")
	bindTag := stanza.NewTagNS("bind", BindNamespace)
	jidTag := stanza.NewTag("jid")
	jidTag.SetText("juliet@example.com/balcony")
	bindTag.AppendTag(jidTag)
	result.AppendTag(bindTag)

	j, err := ParseResult(result)
	require.NoError(t, err)
	require.Equal(t, "juliet", j.Node())
	require.Equal(t, "balcony", j.Resource())
}

func TestParseResultMissingJID(t *testing.T) {
	result := stanza.NewIQ(stanza.IQResult, "bind1")
	_, err := ParseResult(result)
	require.ErrorIs(t, err, ErrMissingJID)
}

func TestGenerateResourceIsNonEmptyAndUnique(t *testing.T) {
	a := GenerateResource()
	b := GenerateResource()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestNewSessionRequest(t *testing.T) {
	iq := NewSessionRequest("sess1")
	require.Equal(t, "set", iq.Attr("type"))
	require.NotNil(t, iq.ChildNamespace("session", SessionNamespace))
}
