/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package sasl

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrMalformedServerMessage is returned when a SCRAM server message
// cannot be parsed.
var ErrMalformedServerMessage = errors.New("sasl: malformed scram server message")

// ErrServerSignatureMismatch is returned when the server's final
// signature does not match the one the client computed, indicating
// either a MITM or a broken server: the client must not treat the
// exchange as successful even if the server later sends <success/>.
var ErrServerSignatureMismatch = errors.New("sasl: scram server signature mismatch")

type scramHash struct {
	name string
	new  func() hash.Hash
	size int
}

var (
	scramSHA1   = scramHash{name: ScramSHA1, new: sha1.New, size: sha1.Size}
	scramSHA256 = scramHash{name: ScramSHA256, new: sha256.New, size: sha256.Size}
)

// scramMechanism implements RFC 5802 SCRAM over the hash variant h.
// DIGEST-MD5's own response digest uses stdlib crypto/md5 (see
// digestmd5.go); SCRAM's salted-password derivation is where
// golang.org/x/crypto/pbkdf2 is exercised.
type scramMechanism struct {
	h     scramHash
	creds Credentials

	clientNonce       string
	clientFirstBare   string
	serverFirstMsg    string
	saltedPassword    []byte
	authMessage       string
	step              int
}

// NewScramSHA1 builds the SCRAM-SHA-1 mechanism.
func NewScramSHA1(creds Credentials) Mechanism { return &scramMechanism{h: scramSHA1, creds: creds} }

// NewScramSHA256 builds the SCRAM-SHA-256 mechanism.
func NewScramSHA256(creds Credentials) Mechanism {
	return &scramMechanism{h: scramSHA256, creds: creds}
}

func (m *scramMechanism) Name() string { return m.h.name }

func (m *scramMechanism) Start() ([]byte, error) {
	nonce, err := genCNonce()
	if err != nil {
		return nil, err
	}
	m.clientNonce = nonce
	m.clientFirstBare = fmt.Sprintf("n=%s,r=%s", saslPrepName(m.creds.Username), m.clientNonce)
	return []byte("n,," + m.clientFirstBare), nil
}

func (m *scramMechanism) Step(challenge []byte) ([]byte, bool, error) {
	m.step++
	switch m.step {
	case 1:
		return m.respondToServerFirst(challenge)
	case 2:
		return nil, true, m.verifyServerFinal(challenge)
	default:
		return nil, false, ErrUnexpectedChallenge
	}
}

func (m *scramMechanism) respondToServerFirst(serverFirst []byte) ([]byte, bool, error) {
	m.serverFirstMsg = string(serverFirst)
	fields := parseSCRAMFields(m.serverFirstMsg)
	serverNonce := fields["r"]
	saltB64 := fields["s"]
	iterStr := fields["i"]
	if serverNonce == "" || saltB64 == "" || iterStr == "" || !strings.HasPrefix(serverNonce, m.clientNonce) {
		return nil, false, ErrMalformedServerMessage
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, false, ErrMalformedServerMessage
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return nil, false, ErrMalformedServerMessage
	}

	m.saltedPassword = pbkdf2.Key([]byte(m.creds.Password), salt, iterations, m.h.size, m.h.new)

	clientFinalWithoutProof := "c=biws,r=" + serverNonce
	m.authMessage = m.clientFirstBare + "," + m.serverFirstMsg + "," + clientFinalWithoutProof

	clientKey := hmacSum(m.h, m.saltedPassword, "Client Key")
	storedKey := hashSum(m.h, clientKey)
	clientSignature := hmacSum(m.h, storedKey, m.authMessage)
	clientProof := xorBytes(clientKey, clientSignature)

	msg := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(msg), false, nil
}

func (m *scramMechanism) verifyServerFinal(serverFinal []byte) error {
	fields := parseSCRAMFields(string(serverFinal))
	v, ok := fields["v"]
	if !ok {
		if _, isErr := fields["e"]; isErr {
			return ErrAborted
		}
		return ErrMalformedServerMessage
	}
	serverSignature, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return ErrMalformedServerMessage
	}
	serverKey := hmacSum(m.h, m.saltedPassword, "Server Key")
	expected := hmacSum(m.h, serverKey, m.authMessage)
	if !hmac.Equal(expected, serverSignature) {
		return ErrServerSignatureMismatch
	}
	return nil
}

func hmacSum(h scramHash, key []byte, data string) []byte {
	mac := hmac.New(h.new, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hashSum(h scramHash, data []byte) []byte {
	sum := h.new()
	sum.Write(data)
	return sum.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func parseSCRAMFields(msg string) map[string]string {
	fields := map[string]string{}
	for _, part := range strings.Split(msg, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}

// saslPrepName escapes ',' and '=' per RFC 5802 §5.1 so the username
// cannot be confused with SCRAM message grammar.
func saslPrepName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}
