/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package sasl

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainInitialResponse(t *testing.T) {
	m := NewPlain(Credentials{Username: "juliet", Password: "r0m3o"})
	require.Equal(t, Plain, m.Name())
	initial, err := m.Start()
	require.NoError(t, err)
	require.Equal(t, "\x00juliet\x00r0m3o", string(initial))
}

func TestPlainRejectsChallenge(t *testing.T) {
	m := NewPlain(Credentials{})
	_, err := m.Start()
	require.NoError(t, err)
	_, _, err = m.Step([]byte("anything"))
	require.ErrorIs(t, err, ErrUnexpectedChallenge)
}

func TestAnonymousInitialResponse(t *testing.T) {
	m := NewAnonymous("trace-id")
	initial, err := m.Start()
	require.NoError(t, err)
	require.Equal(t, "trace-id", string(initial))
}

func TestExternalInitialResponseEmpty(t *testing.T) {
	m := NewExternal("")
	initial, err := m.Start()
	require.NoError(t, err)
	require.Empty(t, initial)
}

func TestDigestMD5RespondsToChallenge(t *testing.T) {
	m := NewDigestMD5(Credentials{Username: "juliet", Password: "r0m3o", Realm: "example.com"}, "example.com")
	initial, err := m.Start()
	require.NoError(t, err)
	require.Nil(t, initial)

	challenge := []byte(`realm="example.com",nonce="OA6MG9tEQGm2hh",qop="auth",charset=utf-8,algorithm=md5-sess`)
	resp, done, err := m.Step(challenge)
	require.NoError(t, err)
	require.False(t, done)
	require.Contains(t, string(resp), `username="juliet"`)
	require.Contains(t, string(resp), `nonce="OA6MG9tEQGm2hh"`)
	require.Contains(t, string(resp), "response=")

	resp2, done2, err := m.Step([]byte(`rspauth=deadbeef`))
	require.NoError(t, err)
	require.True(t, done2)
	require.Nil(t, resp2)
}

func TestDigestMD5MalformedChallenge(t *testing.T) {
	m := NewDigestMD5(Credentials{Username: "a", Password: "b"}, "example.com")
	_, err := m.Start()
	require.NoError(t, err)
	_, _, err = m.Step([]byte(""))
	require.ErrorIs(t, err, ErrMalformedChallenge)
}

func TestSCRAMSHA1FullExchange(t *testing.T) {
	creds := Credentials{Username: "user", Password: "pencil"}
	m := NewScramSHA1(creds)

	clientFirst, err := m.Start()
	require.NoError(t, err)
	require.Contains(t, string(clientFirst), "n,,n=user,r=")

	// Simulate a conformant server: echo the client nonce with a
	// server suffix, supply a salt and iteration count.
	nonce := extractClientNonce(t, string(clientFirst))
	salt := base64.StdEncoding.EncodeToString([]byte("saltsaltsalt"))
	serverFirst := "r=" + nonce + "server,s=" + salt + ",i=4096"

	clientFinal, done, err := m.Step([]byte(serverFirst))
	require.NoError(t, err)
	require.False(t, done)
	require.Contains(t, string(clientFinal), "c=biws,r="+nonce+"server")
	require.Contains(t, string(clientFinal), "p=")

	sm := m.(*scramMechanism)
	serverSig := hmacSum(sm.h, hmacSum(sm.h, sm.saltedPassword, "Server Key"), sm.authMessage)
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(serverSig)

	_, done2, err := m.Step([]byte(serverFinal))
	require.NoError(t, err)
	require.True(t, done2)
}

func TestSCRAMRejectsBadServerSignature(t *testing.T) {
	creds := Credentials{Username: "user", Password: "pencil"}
	m := NewScramSHA256(creds)
	clientFirst, err := m.Start()
	require.NoError(t, err)
	nonce := extractClientNonce(t, string(clientFirst))
	salt := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
	serverFirst := "r=" + nonce + "x,s=" + salt + ",i=4096"
	_, _, err = m.Step([]byte(serverFirst))
	require.NoError(t, err)

	_, _, err = m.Step([]byte("v=" + base64.StdEncoding.EncodeToString([]byte("not-the-right-signature!"))))
	require.ErrorIs(t, err, ErrServerSignatureMismatch)
}

func extractClientNonce(t *testing.T, clientFirst string) string {
	t.Helper()
	fields := parseSCRAMFields(clientFirst[3:]) // strip "n,,"
	require.Contains(t, fields, "r")
	return fields["r"]
}
