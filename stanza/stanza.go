/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stanza

import (
	"errors"

	"github.com/nathan130200/goloox/jid"
)

// Kind classifies a Stanza's fixed top-level element name: a
// stanza's top-level name is fixed by its classification.
type Kind int

const (
	KindIQ Kind = iota
	KindMessage
	KindPresence
)

func (k Kind) elementName() string {
	switch k {
	case KindIQ:
		return "iq"
	case KindMessage:
		return "message"
	case KindPresence:
		return "presence"
	default:
		return ""
	}
}

// IQ subtypes: an IQ's subtype is one of {get, set, result, error}.
const (
	IQGet    = "get"
	IQSet    = "set"
	IQResult = "result"
	IQError  = "error"
)

// Presence subtypes relevant to the "subscription" handler dispatch
// category of the handler registries.
const (
	PresenceSubscribe    = "subscribe"
	PresenceSubscribed   = "subscribed"
	PresenceUnsubscribe  = "unsubscribe"
	PresenceUnsubscribed = "unsubscribed"
)

// ErrWrongElementName is returned when FromTag is asked to classify a
// Tag whose element name doesn't match the requested Kind.
var ErrWrongElementName = errors.New("stanza: element name does not match stanza kind")

// ErrInvalidIQSubtype is returned when an IQ Tag's type attribute is not
// one of {get, set, result, error}.
var ErrInvalidIQSubtype = errors.New("stanza: invalid iq subtype")

// Stanza wraps a classified Tag with derived accessors: from, to,
// id, subtype.
type Stanza struct {
	*Tag
	kind Kind
}

// FromTag classifies an already-parsed Tag as kind, validating the
// invariants a Stanza of that kind must hold.
func FromTag(t *Tag, kind Kind) (*Stanza, error) {
	if localName(t.Name()) != kind.elementName() {
		return nil, ErrWrongElementName
	}
	if kind == KindIQ {
		switch t.Attr("type") {
		case IQGet, IQSet, IQResult, IQError:
		default:
			return nil, ErrInvalidIQSubtype
		}
	}
	return &Stanza{Tag: t, kind: kind}, nil
}

// Kind returns the stanza's classification.
func (s *Stanza) Kind() Kind { return s.kind }

// ID returns the stanza's id attribute.
func (s *Stanza) ID() string { return s.Attr("id") }

// Type returns the stanza's subtype (the "type" attribute).
func (s *Stanza) Type() string { return s.Attr("type") }

// From parses and returns the stanza's from address, or nil if absent
// or unparsable.
func (s *Stanza) From() *jid.JID {
	v := s.Attr("from")
	if v == "" {
		return nil
	}
	j, err := jid.FromString(v)
	if err != nil {
		return nil
	}
	return j
}

// To parses and returns the stanza's to address, or nil if absent or
// unparsable.
func (s *Stanza) To() *jid.JID {
	v := s.Attr("to")
	if v == "" {
		return nil
	}
	j, err := jid.FromString(v)
	if err != nil {
		return nil
	}
	return j
}

// IsIQGetOrSet reports whether the stanza is an IQ requiring a reply.
func (s *Stanza) IsIQGetOrSet() bool {
	return s.kind == KindIQ && (s.Type() == IQGet || s.Type() == IQSet)
}

// IsIQResponse reports whether the stanza is an IQ of subtype result or
// error (i.e. itself a reply, never requiring one).
func (s *Stanza) IsIQResponse() bool {
	return s.kind == KindIQ && (s.Type() == IQResult || s.Type() == IQError)
}

// NewIQ builds a detached IQ Tag with the given subtype and id.
func NewIQ(subtype, id string) *Tag {
	t := NewTag("iq")
	t.SetAttribute("type", subtype)
	t.SetAttribute("id", id)
	return t
}

// NewPresence builds a detached presence Tag, optionally typed (an
// empty subtype means "available").
func NewPresence(subtype string) *Tag {
	t := NewTag("presence")
	if subtype != "" {
		t.SetAttribute("type", subtype)
	}
	return t
}

// NewMessage builds a detached message Tag of the given subtype.
func NewMessage(subtype string) *Tag {
	t := NewTag("message")
	if subtype != "" {
		t.SetAttribute("type", subtype)
	}
	return t
}

// ServiceUnavailable builds the <error type="cancel"><service-unavailable/></error>
// reply sent for an unclaimed get/set IQ.
func ServiceUnavailable(id, to string) *Tag {
	errTag := NewIQ(IQError, id)
	if to != "" {
		errTag.SetAttribute("to", to)
	}
	err := NewTag("error")
	err.SetAttribute("type", "cancel")
	err.AppendTag(NewTagNS("service-unavailable", "urn:ietf:params:xml:ns:xmpp-stanzas"))
	errTag.AppendTag(err)
	return errTag
}
