/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package jid implements the XMPP Jabber Identifier: a (node, domain,
// resource) triple with prepping applied on construction. Domain
// prepping goes through golang.org/x/net/idna; node and resource
// prepping go through golang.org/x/text/secure/precis, kept as narrow
// external collaborators rather than folded into the core itself.
package jid

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Errors returned by JID construction.
var (
	ErrInvalidDomain = errors.New("jid: invalid domain")
	ErrInvalidNode   = errors.New("jid: invalid node")
	ErrInvalidResource = errors.New("jid: invalid resource")
	ErrPartTooLong   = errors.New("jid: part exceeds 1023 bytes")
)

const maxPartLen = 1023

// JID is a prepped, immutable (node, domain, resource) triple.
//
// The zero value is not a valid JID; construct one with New, FromString
// or FromParts.
type JID struct {
	node     string
	domain   string
	resource string
}

// New preps and constructs a JID from its three components. domain is
// mandatory; node and resource may be empty.
func New(node, domain, resource string) (*JID, error) {
	if len(node) > maxPartLen || len(domain) > maxPartLen || len(resource) > maxPartLen {
		return nil, ErrPartTooLong
	}
	if domain == "" {
		return nil, ErrInvalidDomain
	}

	preppedDomain, err := idna.ToUnicode(strings.ToLower(domain))
	if err != nil {
		return nil, ErrInvalidDomain
	}

	var preppedNode string
	if node != "" {
		preppedNode, err = precis.UsernameCaseMapped.String(node)
		if err != nil {
			return nil, ErrInvalidNode
		}
	}

	var preppedResource string
	if resource != "" {
		preppedResource, err = precis.OpaqueString.String(resource)
		if err != nil {
			return nil, ErrInvalidResource
		}
	}

	return &JID{node: preppedNode, domain: preppedDomain, resource: preppedResource}, nil
}

// FromString parses "node@domain/resource" (node and resource optional).
func FromString(s string) (*JID, error) {
	node, domain, resource, err := partsFromString(s)
	if err != nil {
		return nil, err
	}
	return New(node, domain, resource)
}

// FromParts is an alias for New kept for symmetry with FromString.
func FromParts(node, domain, resource string) (*JID, error) {
	return New(node, domain, resource)
}

// partsFromString splits "node@domain/resource" without prepping.
func partsFromString(s string) (node, domain, resource string, err error) {
	atIdx := strings.Index(s, "@")
	slashIdx := strings.Index(s, "/")

	switch {
	case atIdx < 0 && slashIdx < 0:
		domain = s
	case atIdx < 0:
		domain = s[:slashIdx]
		resource = s[slashIdx+1:]
	case slashIdx < 0:
		node = s[:atIdx]
		domain = s[atIdx+1:]
	case atIdx < slashIdx:
		node = s[:atIdx]
		domain = s[atIdx+1 : slashIdx]
		resource = s[slashIdx+1:]
	default:
		// '/' occurs before the first '@': there is no node part, and
		// everything after the first '/' (including further '@'/'/') is
		// resource.
		domain = s[:slashIdx]
		resource = s[slashIdx+1:]
	}
	return node, domain, resource, nil
}

// Node returns the prepped node (localpart), or "" if absent.
func (j *JID) Node() string { return j.node }

// Domain returns the prepped domain.
func (j *JID) Domain() string { return j.domain }

// Resource returns the prepped resource, or "" if absent (bare JID).
func (j *JID) Resource() string { return j.resource }

// IsBare reports whether the JID has no resource.
func (j *JID) IsBare() bool { return j.resource == "" }

// IsFull reports whether the JID has a resource.
func (j *JID) IsFull() bool { return j.resource != "" }

// Bare returns a copy of j with the resource dropped.
func (j *JID) Bare() *JID {
	return &JID{node: j.node, domain: j.domain}
}

// WithResource returns a copy of j with the resource replaced.
func (j *JID) WithResource(resource string) (*JID, error) {
	return New(j.node, j.domain, resource)
}

// Equal reports component-wise equality of the prepped forms.
func (j *JID) Equal(other *JID) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.node == other.node && j.domain == other.domain && j.resource == other.resource
}

// String renders "node@domain/resource", omitting absent parts.
func (j *JID) String() string {
	var b strings.Builder
	if j.node != "" {
		b.WriteString(j.node)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (j *JID) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (j *JID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}
