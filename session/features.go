/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"github.com/nathan130200/goloox/sasl"
	"github.com/nathan130200/goloox/stanza"
)

// featureSet is a bitmask of the capabilities a <stream:features>
// element can advertise: STARTTLS, SASL mechanisms, IQ-auth,
// IQ-register, BIND, SESSION, ACK, and compression methods.
type featureSet uint32

const (
	featStartTLS featureSet = 1 << iota
	featSASLDigestMD5
	featSASLPlain
	featSASLAnonymous
	featSASLExternal
	featSASLScramSHA1
	featSASLScramSHA256
	featIQAuth
	featIQRegister
	featBind
	featSession
	featAck
	featCompressZlib
)

func (f featureSet) has(bit featureSet) bool { return f&bit != 0 }

const (
	nsTLS        = "urn:ietf:params:xml:ns:xmpp-tls"
	nsSASL       = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsBind       = "urn:ietf:params:xml:ns:xmpp-bind"
	nsSession    = "urn:ietf:params:xml:ns:xmpp-session"
	nsCompress   = "http://jabber.org/features/compress"
	nsIQAuth     = "http://jabber.org/features/iq-auth"
	nsIQRegister = "http://jabber.org/features/iq-register"
	nsAck        = "urn:xmpp:sm:3"
)

// parseFeatures computes the capability bitmask from a received
// <stream:features> element.
func parseFeatures(features *stanza.Tag) featureSet {
	var f featureSet

	if t := features.ChildNamespace("starttls", nsTLS); t != nil {
		f |= featStartTLS
	}
	if mechs := features.ChildNamespace("mechanisms", nsSASL); mechs != nil {
		for _, m := range mechs.Children() {
			switch m.Text() {
			case sasl.DigestMD5:
				f |= featSASLDigestMD5
			case sasl.Plain:
				f |= featSASLPlain
			case sasl.Anonymous:
				f |= featSASLAnonymous
			case sasl.External:
				f |= featSASLExternal
			case sasl.ScramSHA1:
				f |= featSASLScramSHA1
			case sasl.ScramSHA256:
				f |= featSASLScramSHA256
			}
		}
	}
	if features.ChildNamespace("auth", nsIQAuth) != nil {
		f |= featIQAuth
	}
	if features.ChildNamespace("register", nsIQRegister) != nil {
		f |= featIQRegister
	}
	if features.ChildNamespace("bind", nsBind) != nil {
		f |= featBind
	}
	if features.ChildNamespace("session", nsSession) != nil {
		f |= featSession
	}
	if features.ChildNamespace("sm", nsAck) != nil {
		f |= featAck
	}
	if comp := features.ChildNamespace("compression", nsCompress); comp != nil {
		for _, m := range comp.Children() {
			if m.Name() == "method" && m.Text() == "zlib" {
				f |= featCompressZlib
			}
		}
	}
	return f
}

// pickMechanism returns the highest-preference SASL mechanism
// featureSet offers and creds has a home for, or "" if none match,
// following sasl.Preference.
func pickMechanism(f featureSet, haveCreds bool) string {
	offered := map[string]featureSet{
		sasl.ScramSHA256: featSASLScramSHA256,
		sasl.ScramSHA1:   featSASLScramSHA1,
		sasl.DigestMD5:   featSASLDigestMD5,
		sasl.Plain:       featSASLPlain,
		sasl.External:    featSASLExternal,
		sasl.Anonymous:   featSASLAnonymous,
	}
	for _, name := range sasl.Preference {
		bit, ok := offered[name]
		if !ok || !f.has(bit) {
			continue
		}
		needsCreds := name != sasl.Anonymous && name != sasl.External
		if needsCreds && !haveCreds {
			continue
		}
		return name
	}
	return ""
}
