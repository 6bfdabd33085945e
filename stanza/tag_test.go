/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stanza

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagSerialization(t *testing.T) {
	tag := NewTagNS("iq", "jabber:client")
	tag.SetAttribute("id", "q1")
	tag.SetAttribute("type", "get")
	query := NewTagNS("query", "jabber:iq:roster")
	tag.AppendTag(query)

	got := tag.String()
	require.Equal(t, `<iq xmlns="jabber:client" id="q1" type="get"><query xmlns="jabber:iq:roster"/></iq>`, got)
}

func TestTagTextEscaping(t *testing.T) {
	tag := NewTag("body")
	tag.SetText(`<a> & "b" 'c'`)
	require.Equal(t, `<body>&lt;a&gt; &amp; "b" 'c'</body>`, tag.String())
}

func TestChildLookup(t *testing.T) {
	root := NewTag("iq")
	root.AppendTag(NewTagNS("bind", "urn:ietf:params:xml:ns:xmpp-bind"))
	require.NotNil(t, root.Child("bind"))
	require.NotNil(t, root.ChildNamespace("bind", "urn:ietf:params:xml:ns:xmpp-bind"))
	require.Nil(t, root.ChildNamespace("bind", "urn:other"))
}

func TestSetAttributeReplaces(t *testing.T) {
	tag := NewTag("x")
	tag.SetAttribute("a", "1")
	tag.SetAttribute("a", "2")
	require.Len(t, tag.Attributes(), 1)
	require.Equal(t, "2", tag.Attr("a"))
}

func TestCloneIsDeep(t *testing.T) {
	root := NewTag("a")
	root.AppendTag(NewTag("b"))
	clone := root.Clone()
	clone.Children()[0].SetAttribute("x", "1")
	require.Empty(t, root.Children()[0].Attr("x"))
}
