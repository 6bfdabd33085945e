/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package stanza implements the Tag/Stanza data model: a recursive
// XML element tree (Tag) whose top-level children, when classified,
// become Stanzas (IQ, Message, Presence). Ownership is strict
// parent-owns-children: there are no raw pointers to reparent, only
// value-built trees assembled with AppendChild/AppendTag and
// serialized on demand.
package stanza

import (
	"strings"
)

// Node is either a *Tag or CData, the two kinds of ordered children a
// Tag may own.
type Node interface {
	isNode()
	toXML(b *strings.Builder)
}

// CData is a leaf text node.
type CData string

func (CData) isNode() {}

func (c CData) toXML(b *strings.Builder) {
	b.WriteString(escapeText(string(c)))
}

// Attribute is a single name/value pair. Tag keeps attributes in
// insertion order and enforces uniqueness of Name on SetAttribute.
type Attribute struct {
	Name  string
	Value string
}

// Tag is a recursive XML element: a name, an ordered unique-by-name
// attribute list, and an ordered list of child Nodes (Tags or CData).
type Tag struct {
	name     string
	attrs    []Attribute
	children []Node
}

// NewTag creates a detached Tag with no attributes or children.
func NewTag(name string) *Tag {
	return &Tag{name: name}
}

// NewTagNS creates a Tag and sets its xmlns attribute.
func NewTagNS(name, namespace string) *Tag {
	t := NewTag(name)
	t.SetAttribute("xmlns", namespace)
	return t
}

// Name returns the tag's element name (may include a "prefix:local"
// form, as produced by the stream parser).
func (t *Tag) Name() string { return t.name }

func (t *Tag) isNode() {}

// SetAttribute sets (or replaces) the value of attribute name.
func (t *Tag) SetAttribute(name, value string) *Tag {
	for i := range t.attrs {
		if t.attrs[i].Name == name {
			t.attrs[i].Value = value
			return t
		}
	}
	t.attrs = append(t.attrs, Attribute{Name: name, Value: value})
	return t
}

// Attribute returns the value of attribute name and whether it is set.
func (t *Tag) Attribute(name string) (string, bool) {
	for _, a := range t.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attr is a convenience accessor returning "" for an absent attribute.
func (t *Tag) Attr(name string) string {
	v, _ := t.Attribute(name)
	return v
}

// Attributes returns a copy of the ordered attribute list.
func (t *Tag) Attributes() []Attribute {
	out := make([]Attribute, len(t.attrs))
	copy(out, t.attrs)
	return out
}

// Namespace is sugar for Attr("xmlns").
func (t *Tag) Namespace() string { return t.Attr("xmlns") }

// AppendChild appends a child node (Tag or CData) to t's child list. t
// becomes the exclusive owner of child.
func (t *Tag) AppendChild(child Node) *Tag {
	t.children = append(t.children, child)
	return t
}

// AppendTag is sugar for AppendChild with a *Tag.
func (t *Tag) AppendTag(child *Tag) *Tag {
	return t.AppendChild(child)
}

// SetText replaces t's direct CData children with a single CData node
// holding text. Existing Tag children are left untouched.
func (t *Tag) SetText(text string) *Tag {
	var kept []Node
	for _, c := range t.children {
		if _, ok := c.(CData); ok {
			continue
		}
		kept = append(kept, c)
	}
	t.children = append(kept, CData(text))
	return t
}

// Text concatenates all direct CData children.
func (t *Tag) Text() string {
	var b strings.Builder
	for _, c := range t.children {
		if cd, ok := c.(CData); ok {
			b.WriteString(string(cd))
		}
	}
	return b.String()
}

// Children returns the direct Tag children, in document order.
func (t *Tag) Children() []*Tag {
	var out []*Tag
	for _, c := range t.children {
		if tag, ok := c.(*Tag); ok {
			out = append(out, tag)
		}
	}
	return out
}

// Child returns the first direct Tag child named name, or nil.
func (t *Tag) Child(name string) *Tag {
	for _, c := range t.children {
		if tag, ok := c.(*Tag); ok && localName(tag.name) == localName(name) {
			return tag
		}
	}
	return nil
}

// ChildNamespace returns the first direct Tag child named name whose
// xmlns equals namespace, or nil.
func (t *Tag) ChildNamespace(name, namespace string) *Tag {
	for _, c := range t.children {
		if tag, ok := c.(*Tag); ok && localName(tag.name) == localName(name) && tag.Namespace() == namespace {
			return tag
		}
	}
	return nil
}

func localName(name string) string {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// String renders t as its serialized XML form.
func (t *Tag) String() string {
	var b strings.Builder
	t.toXML(&b)
	return b.String()
}

func (t *Tag) toXML(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(t.name)
	for _, a := range t.attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}
	if len(t.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range t.children {
		c.toXML(b)
	}
	b.WriteString("</")
	b.WriteString(t.name)
	b.WriteByte('>')
}

// Clone performs a deep copy of t.
func (t *Tag) Clone() *Tag {
	clone := &Tag{name: t.name, attrs: append([]Attribute(nil), t.attrs...)}
	for _, c := range t.children {
		switch v := c.(type) {
		case *Tag:
			clone.children = append(clone.children, v.Clone())
		case CData:
			clone.children = append(clone.children, v)
		}
	}
	return clone
}

func escapeAttr(s string) string {
	return escapeEntities(s, true)
}

func escapeText(s string) string {
	return escapeEntities(s, false)
}

func escapeEntities(s string, isAttr bool) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\'':
			if isAttr {
				b.WriteString("&apos;")
			} else {
				b.WriteRune(r)
			}
		case '"':
			if isAttr {
				b.WriteString("&quot;")
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
