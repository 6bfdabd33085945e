/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package parser implements an incremental, SAX-like XML stream
// parser: it consumes arbitrary chunks of UTF-8 bytes and emits the
// server's top-level <stream:stream> open tag once (at
// depth zero) and every one of its immediate children once each is
// fully closed. It never blocks on input: insufficient data is
// buffered, not an error, and Feed may be called repeatedly as bytes
// arrive from the byte transport's on-data callback.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nathan130200/goloox/stanza"
)

// internalState enumerates the parser's states, named after gloox's
// ParserInternalState.
type internalState int

const (
	Initial internalState = iota
	TagOpening
	TagOpeningSlash
	TagOpeningLt
	TagInside
	TagNameCollect
	TagNameComplete
	TagNameAlmostComplete
	TagAttribute
	TagAttributeComplete
	TagAttributeEqual
	TagClosing
	TagClosingSlash
	TagValueAposOrQuot
	TagAttributeValue
	TagPreamble
	TagCDATASection
	TagBang
)

// ErrMalformedXML is returned (wrapped with position context) when the
// input cannot be valid XML in the parser's current state.
var ErrMalformedXML = errors.New("parser: malformed xml")

// ErrInvalidUTF8 is returned when a chunk contains a byte sequence that
// is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("parser: invalid utf-8")

// PositionError wraps ErrMalformedXML with the absolute byte offset (in
// the cumulative feed stream) at which parsing failed.
type PositionError struct {
	Err    error
	Offset int64
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("%v (at offset %d)", e.Err, e.Offset)
}

func (e *PositionError) Unwrap() error { return e.Err }

// Handler receives parser events. StreamOpen fires exactly once per
// stream generation at depth zero; Element fires once per completed
// immediate child of the stream root; StreamClose fires on
// </stream:stream>.
type Handler interface {
	StreamOpen(name string, attrs []stanza.Attribute)
	Element(tag *stanza.Tag)
	StreamClose()
}

// elementFrame tracks one open tag on the parser's stack.
type elementFrame struct {
	tag   *stanza.Tag
	quote byte // the quote rune in effect while scanning an attribute value
}

// Parser is a restartable incremental XML stream parser.
type Parser struct {
	handler Handler

	state internalState
	stack []*elementFrame

	tagName  strings.Builder
	attrName strings.Builder
	attrVal  strings.Builder
	cdata    strings.Builder
	pending  []stanza.Attribute

	closingName strings.Builder
	bangBuf     strings.Builder

	quote byte

	offset int64

	// entity reference accumulation (between '&' and ';')
	inEntity bool
	entity   strings.Builder
}

// New constructs a Parser delivering events to h.
func New(h Handler) *Parser {
	return &Parser{handler: h, state: Initial}
}

// Reset returns the parser to its Initial state, discarding any
// partially-parsed tag stack. Called after a stream restart.
func (p *Parser) Reset() {
	p.state = Initial
	p.stack = nil
	p.tagName.Reset()
	p.attrName.Reset()
	p.attrVal.Reset()
	p.cdata.Reset()
	p.pending = nil
	p.closingName.Reset()
	p.inEntity = false
	p.entity.Reset()
	p.offset = 0
}

// Feed supplies the next chunk of raw bytes. A PositionError is
// returned for malformed XML; ErrInvalidUTF8 for invalid encoding.
// Neither error leaves the parser usable; Reset before feeding again.
func (p *Parser) Feed(data []byte) error {
	if !utf8.Valid(data) {
		return ErrInvalidUTF8
	}
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			return ErrInvalidUTF8
		}
		if err := p.step(r); err != nil {
			return &PositionError{Err: err, Offset: p.offset}
		}
		data = data[size:]
		p.offset += int64(size)
	}
	return nil
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

func isNameStart(r rune) bool {
	return r == '_' || r == ':' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || (r >= '0' && r <= '9')
}

func (p *Parser) step(r rune) error {
	switch p.state {
	case Initial:
		if isWhitespace(r) {
			return nil
		}
		if r == '<' {
			p.state = TagOpeningLt
			return nil
		}
		return ErrMalformedXML

	case TagOpeningLt:
		switch {
		case r == '?':
			p.state = TagPreamble
		case r == '/':
			p.state = TagClosingSlash
			p.closingName.Reset()
		case r == '!':
			p.state = TagBang
			p.bangBuf.Reset()
		case isNameStart(r):
			p.state = TagNameCollect
			p.tagName.Reset()
			p.tagName.WriteRune(r)
		default:
			return ErrMalformedXML
		}
		return nil

	case TagBang:
		p.bangBuf.WriteRune(r)
		buf := p.bangBuf.String()
		const needle = "[CDATA["
		if len(buf) > len(needle) {
			return ErrMalformedXML
		}
		if !strings.HasPrefix(needle, buf) {
			return ErrMalformedXML
		}
		if buf == needle {
			p.state = TagCDATASection
			p.cdata.Reset()
		}
		return nil

	case TagPreamble:
		if r == '>' {
			p.state = Initial
		}
		// preamble contents (xml version/encoding) are discarded
		return nil

	case TagClosingSlash:
		if isNameStart(r) || (p.closingName.Len() > 0 && isNameChar(r)) {
			p.closingName.WriteRune(r)
			return nil
		}
		if r == '>' {
			return p.closeTag()
		}
		if isWhitespace(r) {
			return nil
		}
		return ErrMalformedXML

	case TagNameCollect:
		if isNameChar(r) {
			p.tagName.WriteRune(r)
			return nil
		}
		if isWhitespace(r) {
			p.state = TagNameComplete
			p.pending = nil
			return nil
		}
		if r == '>' {
			return p.openTag(false)
		}
		if r == '/' {
			p.state = TagNameAlmostComplete
			return nil
		}
		return ErrMalformedXML

	case TagNameAlmostComplete: // saw '/' right after the tag name
		if r == '>' {
			return p.openTag(true)
		}
		return ErrMalformedXML

	case TagNameComplete: // whitespace after tag name, expecting attr or '>'
		if isWhitespace(r) {
			return nil
		}
		if r == '>' {
			return p.openTag(false)
		}
		if r == '/' {
			p.state = TagClosing
			return nil
		}
		if isNameStart(r) {
			p.state = TagAttribute
			p.attrName.Reset()
			p.attrName.WriteRune(r)
			return nil
		}
		return ErrMalformedXML

	case TagClosing: // saw '/' while expecting end of start tag
		if r == '>' {
			return p.openTag(true)
		}
		return ErrMalformedXML

	case TagAttribute:
		if isNameChar(r) {
			p.attrName.WriteRune(r)
			return nil
		}
		if isWhitespace(r) {
			p.state = TagAttributeComplete
			return nil
		}
		if r == '=' {
			p.state = TagAttributeEqual
			return nil
		}
		return ErrMalformedXML

	case TagAttributeComplete: // whitespace after attribute name
		if isWhitespace(r) {
			return nil
		}
		if r == '=' {
			p.state = TagAttributeEqual
			return nil
		}
		return ErrMalformedXML

	case TagAttributeEqual: // expecting opening quote
		if isWhitespace(r) {
			return nil
		}
		if r == '"' || r == '\'' {
			p.quote = byte(r)
			p.state = TagAttributeValue
			p.attrVal.Reset()
			p.inEntity = false
			return nil
		}
		return ErrMalformedXML

	case TagAttributeValue, TagValueAposOrQuot:
		return p.stepValue(r, true)

	case TagInside:
		return p.stepValue(r, false)

	case TagCDATASection:
		return p.stepCDATA(r)
	}
	return ErrMalformedXML
}

// stepValue scans either an attribute value (inAttr true, terminated by
// the stored quote char) or element CDATA (inAttr false, terminated by
// '<').
func (p *Parser) stepValue(r rune, inAttr bool) error {
	dst := &p.attrVal
	if !inAttr {
		dst = &p.cdata
	}

	if p.inEntity {
		if r == ';' {
			decoded, err := decodeEntity(p.entity.String())
			if err != nil {
				return err
			}
			dst.WriteString(decoded)
			p.inEntity = false
			p.entity.Reset()
			return nil
		}
		p.entity.WriteRune(r)
		if p.entity.Len() > 32 {
			return ErrMalformedXML
		}
		return nil
	}

	if r == '&' {
		p.inEntity = true
		p.entity.Reset()
		return nil
	}

	if inAttr {
		if r == rune(p.quote) {
			p.pending = append(p.pending, stanza.Attribute{Name: p.attrName.String(), Value: p.attrVal.String()})
			p.state = TagNameComplete
			return nil
		}
		dst.WriteRune(r)
		return nil
	}

	// element content
	if r == '<' {
		if p.cdata.Len() > 0 {
			p.appendContent(p.cdata.String())
			p.cdata.Reset()
		}
		p.state = TagOpeningLt
		return nil
	}
	dst.WriteRune(r)
	return nil
}

func (p *Parser) stepCDATA(r rune) error {
	// buffered match against "]]>"; simple approach: accumulate and check suffix
	p.cdata.WriteRune(r)
	s := p.cdata.String()
	if strings.HasSuffix(s, "]]>") {
		p.appendContent(s[:len(s)-3])
		p.cdata.Reset()
		p.state = TagInside
	}
	return nil
}

// appendContent attaches text as a CData child of the current frame,
// unless that frame is the stream root: whitespace keepalives sent
// between top-level stanzas have no semantic value and would otherwise
// accumulate on the root tag for the session's lifetime.
func (p *Parser) appendContent(text string) {
	if len(p.stack) <= 1 {
		return
	}
	if top := p.top(); top != nil {
		top.tag.AppendChild(stanza.CData(text))
	}
}

func (p *Parser) top() *elementFrame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// openTag finalizes a start tag (selfClosing indicates "<name .../>").
func (p *Parser) openTag(selfClosing bool) error {
	name := p.tagName.String()
	tag := stanza.NewTag(name)
	for _, a := range p.pending {
		tag.SetAttribute(a.Name, a.Value)
	}
	p.pending = nil

	if len(p.stack) == 0 {
		// depth-zero stream root: reported immediately via StreamOpen
		// rather than as an Element, since it is closed only by
		// </stream:stream> at EOF.
		if name != "stream:stream" {
			return ErrMalformedXML
		}
		p.handler.StreamOpen(name, tag.Attributes())
		if selfClosing {
			p.handler.StreamClose()
		} else {
			// push a sentinel frame representing the open root so children
			// are tracked at depth 1.
			p.stack = append(p.stack, &elementFrame{tag: tag})
		}
		p.state = Initial
		p.cdata.Reset()
		return nil
	}

	atRoot := len(p.stack) == 1 // parent is the stream root itself
	parent := p.top()
	switch {
	case selfClosing && atRoot:
		// a self-closing immediate child of the stream root completes on
		// its own; it is never attached to the root (which would leak for
		// the session's lifetime) — just emitted.
		p.handler.Element(tag)
	case selfClosing:
		parent.tag.AppendTag(tag)
	default:
		p.stack = append(p.stack, &elementFrame{tag: tag})
	}
	if len(p.stack) > 1 {
		// inside an open element: character data may follow
		p.state = TagInside
	} else {
		p.state = Initial
	}
	p.cdata.Reset()
	return nil
}

func (p *Parser) closeTag() error {
	name := p.closingName.String()
	if p.cdata.Len() > 0 {
		p.appendContent(p.cdata.String())
		p.cdata.Reset()
	}

	if name == "stream:stream" {
		if len(p.stack) != 1 {
			return ErrMalformedXML
		}
		p.stack = nil
		p.handler.StreamClose()
		p.state = Initial
		return nil
	}

	if len(p.stack) < 2 {
		return ErrMalformedXML
	}
	top := p.top()
	if localName(top.tag.Name()) != localName(name) {
		return ErrMalformedXML
	}
	atRoot := len(p.stack) == 2 // top's parent is the stream root
	parent := p.stack[len(p.stack)-2]
	p.stack = p.stack[:len(p.stack)-1]
	if atRoot {
		// just closed a direct child of the stream root: emit it without
		// attaching to the root, which would leak for the session's
		// lifetime.
		p.handler.Element(top.tag)
	} else {
		parent.tag.AppendTag(top.tag)
	}
	if len(p.stack) > 1 {
		// still inside the parent element: its character data may follow
		p.state = TagInside
	} else {
		p.state = Initial
	}
	return nil
}

func localName(name string) string {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func decodeEntity(e string) (string, error) {
	switch e {
	case "amp":
		return "&", nil
	case "lt":
		return "<", nil
	case "gt":
		return ">", nil
	case "quot":
		return "\"", nil
	case "apos":
		return "'", nil
	}
	if strings.HasPrefix(e, "#x") || strings.HasPrefix(e, "#X") {
		n, err := strconv.ParseInt(e[2:], 16, 32)
		if err != nil {
			return "", ErrMalformedXML
		}
		return string(rune(n)), nil
	}
	if strings.HasPrefix(e, "#") {
		n, err := strconv.ParseInt(e[1:], 10, 32)
		if err != nil {
			return "", ErrMalformedXML
		}
		return string(rune(n)), nil
	}
	return "", ErrMalformedXML
}
