/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ErrNoSupportedAuth is returned when negotiation exhausts every
// offered SASL mechanism and legacy IQ-auth without finding one the
// configured credentials can drive.
var ErrNoSupportedAuth = errors.New("session: no supported authentication mechanism offered")

// ErrAlreadyConnected is returned by Connect when called on a session
// that is not Disconnected.
var ErrAlreadyConnected = errors.New("session: already connected or connecting")

// ErrTLSNotConfigured is passed to disconnect listeners when the
// server answers <starttls/> with <failure/>. A session without a
// tls.Config never sends <starttls/> and is not torn down with it.
var ErrTLSNotConfigured = errors.New("session: server refused STARTTLS")

// ErrBindFailed is returned when the server's resource-binding IQ
// comes back as an error.
var ErrBindFailed = errors.New("session: resource binding failed")

// ErrSessionFailed is returned when the legacy RFC 3921 session
// establishment IQ comes back as an error.
var ErrSessionFailed = errors.New("session: session establishment failed")

// ErrCompressionFailed is returned when the server rejects a
// compression request.
var ErrCompressionFailed = errors.New("session: compression negotiation failed")

// Wrap attaches message and a stack trace to err, for failures that
// cross the transport/session package boundary where a caller
// debugging a negotiation failure benefits from knowing where it
// originated.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}
