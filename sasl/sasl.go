/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package sasl implements the SASL mechanisms a client may negotiate
// over an XMPP stream: DIGEST-MD5, PLAIN, ANONYMOUS, EXTERNAL, and the
// SCRAM-SHA-1/SCRAM-SHA-256 family. The mechanism exchange follows the
// usual challenge/response shape (send <auth>, read <challenge>, send
// <response>, read <success>/<failure>), generalized into a Mechanism
// interface the session core can drive without knowing the wire
// details of any one mechanism.
package sasl

import "errors"

// Namespace is the SASL namespace the session core negotiates within.
const Namespace = "urn:ietf:params:xml:ns:xmpp-sasl"

// Mechanism name constants.
const (
	DigestMD5   = "DIGEST-MD5"
	Plain       = "PLAIN"
	External    = "EXTERNAL"
	Anonymous   = "ANONYMOUS"
	ScramSHA1   = "SCRAM-SHA-1"
	ScramSHA256 = "SCRAM-SHA-256"
)

// Preference orders the mechanism names from most to least preferred.
// The SCRAM variants are preferred over DIGEST-MD5 when offered since
// they use a modern hash and a salted, iterated key derivation.
var Preference = []string{ScramSHA256, ScramSHA1, DigestMD5, Plain, External, Anonymous}

// ErrAborted reports that the server failed the exchange: SCRAM's Step
// returns it when the server-final message carries an e= error, and
// the session core reports it when a <failure/> arrives.
var ErrAborted = errors.New("sasl: authentication aborted by peer")

// ErrUnexpectedChallenge is returned when a mechanism that expects no
// further challenges after its initial response receives one anyway.
var ErrUnexpectedChallenge = errors.New("sasl: unexpected challenge")

// Mechanism drives one SASL mechanism's challenge/response exchange.
// A Mechanism instance is single-use: construct a fresh one per
// authentication attempt.
type Mechanism interface {
	// Name is the mechanism's SASL name, sent as the <auth
	// mechanism='...'> attribute.
	Name() string

	// Start returns the initial response to send as <auth>'s body
	// (base64-encoded by the caller), or nil if the mechanism sends
	// no initial response (RFC 6120 §6.3.1item 3, e.g. plain
	// DIGEST-MD5).
	Start() (initial []byte, err error)

	// Step consumes one decoded <challenge> body and returns the
	// decoded <response> body to send back, and whether the exchange
	// is now complete from the client's side (the client still waits
	// for <success>, but will not send another <response>).
	Step(challenge []byte) (response []byte, done bool, err error)
}

// Credentials carries the identity material mechanisms need. Not
// every field is used by every mechanism.
type Credentials struct {
	Username string
	Password string
	Realm    string // DIGEST-MD5 realm used when the challenge names none; SCRAM ignores it
	AuthzID  string // optional authorization identity (distinct from authentication identity)
}

// plainMechanism implements RFC 4616 PLAIN.
type plainMechanism struct {
	creds Credentials
}

// NewPlain builds the PLAIN mechanism.
func NewPlain(creds Credentials) Mechanism { return &plainMechanism{creds: creds} }

func (m *plainMechanism) Name() string { return Plain }

func (m *plainMechanism) Start() ([]byte, error) {
	msg := m.creds.AuthzID + "\x00" + m.creds.Username + "\x00" + m.creds.Password
	return []byte(msg), nil
}

func (m *plainMechanism) Step(challenge []byte) ([]byte, bool, error) {
	return nil, false, ErrUnexpectedChallenge
}

// anonymousMechanism implements RFC 4505 ANONYMOUS.
type anonymousMechanism struct {
	trace string
}

// NewAnonymous builds the ANONYMOUS mechanism. trace is an optional
// opaque string (e.g. an email address) identifying the session for
// abuse tracking; it may be empty.
func NewAnonymous(trace string) Mechanism { return &anonymousMechanism{trace: trace} }

func (m *anonymousMechanism) Name() string { return Anonymous }

func (m *anonymousMechanism) Start() ([]byte, error) { return []byte(m.trace), nil }

func (m *anonymousMechanism) Step(challenge []byte) ([]byte, bool, error) {
	return nil, false, ErrUnexpectedChallenge
}

// externalMechanism implements RFC 4422 appendix A EXTERNAL: identity
// is established out-of-band (the TLS client certificate), so the
// initial response is either empty or the requested authzid.
type externalMechanism struct {
	authzID string
}

// NewExternal builds the EXTERNAL mechanism.
func NewExternal(authzID string) Mechanism { return &externalMechanism{authzID: authzID} }

func (m *externalMechanism) Name() string { return External }

func (m *externalMechanism) Start() ([]byte, error) { return []byte(m.authzID), nil }

func (m *externalMechanism) Step(challenge []byte) ([]byte, bool, error) {
	return nil, false, ErrUnexpectedChallenge
}
