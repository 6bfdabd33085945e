/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stream

import "github.com/nathan130200/goloox/stanza"

const namespace = "urn:ietf:params:xml:ns:xmpp-streams"

// Error is a server-initiated stream-level error, serialized as a
// <stream:error> child element named after Condition.
type Error struct {
	Condition string
	Text      string
}

func (e *Error) Error() string {
	if e.Text != "" {
		return "stream error: " + e.Condition + ": " + e.Text
	}
	return "stream error: " + e.Condition
}

// Element renders the error as a <stream:error> Tag ready to send.
func (e *Error) Element() *stanza.Tag {
	t := stanza.NewTag("stream:error")
	t.AppendTag(stanza.NewTagNS(e.Condition, namespace))
	if e.Text != "" {
		text := stanza.NewTagNS("text", namespace)
		text.SetText(e.Text)
		t.AppendTag(text)
	}
	return t
}

// FromElement parses a received <stream:error> element back into an
// Error, picking the first child as the condition (RFC 6120 §4.9.2).
func FromElement(t *stanza.Tag) *Error {
	children := t.Children()
	if len(children) == 0 {
		return &Error{Condition: "undefined-condition"}
	}
	e := &Error{Condition: children[0].Name()}
	if textTag := t.Child("text"); textTag != nil {
		e.Text = textTag.Text()
	}
	return e
}

// Well-known stream error conditions used by the negotiation state
// machine.
var (
	ErrBadFormat          = &Error{Condition: "bad-format"}
	ErrHostUnknown        = &Error{Condition: "host-unknown"}
	ErrInvalidFrom        = &Error{Condition: "invalid-from"}
	ErrInvalidNamespace   = &Error{Condition: "invalid-namespace"}
	ErrInvalidXML         = &Error{Condition: "invalid-xml"}
	ErrNotAuthorized      = &Error{Condition: "not-authorized"}
	ErrPolicyViolation    = &Error{Condition: "policy-violation"}
	ErrConnectionTimeout  = &Error{Condition: "connection-timeout"}
	ErrUnsupportedVersion = &Error{Condition: "unsupported-version"}
	ErrUnsupportedStanza  = &Error{Condition: "unsupported-stanza-type"}
	ErrUndefinedCondition = &Error{Condition: "undefined-condition"}
)
