/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package parser

import (
	"testing"

	"github.com/nathan130200/goloox/stanza"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	opened    bool
	openName  string
	openAttrs []stanza.Attribute
	elements  []*stanza.Tag
	closed    bool
}

func (r *recorder) StreamOpen(name string, attrs []stanza.Attribute) {
	r.opened = true
	r.openName = name
	r.openAttrs = attrs
}

func (r *recorder) Element(tag *stanza.Tag) {
	r.elements = append(r.elements, tag)
}

func (r *recorder) StreamClose() {
	r.closed = true
}

func TestStreamOpenFiresOnce(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	err := p.Feed([]byte(`<stream:stream to="example.com" version="1.0">`))
	require.NoError(t, err)
	require.True(t, rec.opened)
	require.Equal(t, "stream:stream", rec.openName)
	require.Empty(t, rec.elements)
}

func TestElementRoundTripsAndRootNeverGrows(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream to="example.com">`)))

	iq := stanza.NewIQ(stanza.IQSet, "q1")
	bind := stanza.NewTagNS("bind", "urn:ietf:params:xml:ns:xmpp-bind")
	iq.AppendTag(bind)
	wire := iq.String()

	require.NoError(t, p.Feed([]byte(wire)))
	require.Len(t, rec.elements, 1)
	require.Equal(t, wire, rec.elements[0].String())

	// the root frame must never retain the emitted child
	require.Len(t, p.stack, 1)
	require.Empty(t, p.stack[0].tag.Children())
}

func TestSelfClosingTopLevelElement(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(`<presence/>`)))
	require.Len(t, rec.elements, 1)
	require.Equal(t, "presence", rec.elements[0].Name())
	require.Empty(t, p.stack[0].tag.Children())
}

func TestWhitespaceKeepaliveIsDropped(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(" \n \n")))
	require.NoError(t, p.Feed([]byte(`<iq type="get" id="1"/>`)))
	require.Len(t, rec.elements, 1)
	require.Empty(t, p.stack[0].tag.Children())
}

func TestNestedElementPreservesChildText(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(`<message><body>hi &amp; bye</body></message>`)))
	require.Len(t, rec.elements, 1)
	body := rec.elements[0].Child("body")
	require.NotNil(t, body)
	require.Equal(t, "hi & bye", body.Text())
}

func TestEntityDecoding(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(`<body>&lt;&gt;&amp;&apos;&quot;&#65;&#x42;</body>`)))
	require.Len(t, rec.elements, 1)
	require.Equal(t, `<>&'"AB`, rec.elements[0].Text())
}

func TestCDATASection(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(`<body><![CDATA[<raw> & stuff]]></body>`)))
	require.Len(t, rec.elements, 1)
	require.Equal(t, "<raw> & stuff", rec.elements[0].Text())
}

func TestChunkedFeedAcrossElementBoundary(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	full := `<stream:stream to="example.com"><iq type="get" id="1"><query xmlns="jabber:iq:roster"/></iq>`
	for i := 0; i < len(full); i++ {
		require.NoError(t, p.Feed([]byte{full[i]}))
	}
	require.True(t, rec.opened)
	require.Len(t, rec.elements, 1)
	require.Equal(t, "iq", rec.elements[0].Name())
	require.NotNil(t, rec.elements[0].Child("query"))
}

func TestStreamClose(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	require.NoError(t, p.Feed([]byte(`</stream:stream>`)))
	require.True(t, rec.closed)
}

func TestMismatchedClosingTagIsMalformed(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream>`)))
	err := p.Feed([]byte(`<iq></message>`))
	require.Error(t, err)
	var perr *PositionError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, perr.Err, ErrMalformedXML)
}

func TestNonStreamRootIsMalformed(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	err := p.Feed([]byte(`<foo>`))
	require.Error(t, err)
}

func TestInvalidUTF8(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	err := p.Feed([]byte{0xff, 0xfe, 0xfd})
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestResetAllowsStreamRestart(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<stream:stream to="example.com">`)))
	require.NoError(t, p.Feed([]byte(`<iq type="set" id="1"/>`)))
	require.Len(t, rec.elements, 1)

	p.Reset()
	rec2 := &recorder{}
	p2 := New(rec2)
	require.NoError(t, p2.Feed([]byte(`<stream:stream to="example.com" id="new-sid">`)))
	require.True(t, rec2.opened)

	// the original parser, once reset, starts a fresh generation too
	require.NoError(t, p.Feed([]byte(`<stream:stream to="example.com" id="new-sid">`)))
}

func TestPreambleIsSkipped(t *testing.T) {
	rec := &recorder{}
	p := New(rec)
	require.NoError(t, p.Feed([]byte(`<?xml version="1.0" encoding="UTF-8"?><stream:stream>`)))
	require.True(t, rec.opened)
}
