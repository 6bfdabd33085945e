/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package transport implements the byte transport abstraction: a
// small polymorphic interface over {direct TCP, TLS-wrapping, BOSH,
// QUIC} that reports connection lifecycle and inbound bytes to a
// single registered Handler.
package transport

import "time"

// State is the transport's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Reason classifies why a transport moved to Disconnected.
type Reason int

const (
	ReasonUser Reason = iota
	ReasonPeerClosed
	ReasonError
	ReasonTLSFailed
	ReasonNotConnected
	ReasonStreamClosed
)

func (r Reason) String() string {
	switch r {
	case ReasonUser:
		return "user-initiated"
	case ReasonPeerClosed:
		return "peer-closed"
	case ReasonError:
		return "transport-error"
	case ReasonTLSFailed:
		return "tls-handshake-failed"
	case ReasonNotConnected:
		return "not-connected"
	case ReasonStreamClosed:
		return "stream-closed"
	default:
		return "unknown"
	}
}

// Kind distinguishes the concrete transport variants: direct TCP,
// BOSH, and QUIC.
type Kind int

const (
	KindSocket Kind = iota
	KindBOSH
	KindQUIC
)

// Handler receives the transport's asynchronous events. A transport
// holds exactly one handler at a time, set via Transport.SetHandler.
type Handler interface {
	OnConnect()
	OnDisconnect(reason Reason, err error)
	OnData(data []byte)
}

// Transport is the byte transport abstraction. Implementations are
// driven by a single owner goroutine: Connect, Send and Recv are
// never called concurrently with each other on the same instance.
type Transport interface {
	// Connect establishes the underlying connection. It blocks until
	// the connection is usable or an error occurs; on success the
	// handler's OnConnect fires before Connect returns.
	Connect() error

	// Disconnect tears down the connection, notifying the handler
	// with reason if it is currently set.
	Disconnect(reason Reason)

	// Send writes data to the peer. It reports false if the
	// transport is not connected; true does not guarantee delivery,
	// only that the write was accepted locally.
	Send(data []byte) bool

	// Recv blocks for up to timeout waiting for inbound data, a
	// disconnect, or neither (a plain timeout, reported as nil
	// error). When data arrives, the handler's OnData fires before
	// Recv returns.
	Recv(timeout time.Duration) error

	// SetHandler installs the transport's single event sink.
	SetHandler(h Handler)

	// State reports the transport's current connection state.
	State() State

	// Kind reports which concrete variant this transport is. The
	// session core does not consult it; it checks the Secure
	// interface instead.
	Kind() Kind

	// NewInstance clones this transport's configuration into a new,
	// disconnected peer. The BOSH transport does not call it: its HTTP
	// connections are pooled by its http.Client.
	NewInstance() Transport

	// Statistics reports cumulative bytes sent/received.
	Statistics() (sent, received uint64)
}

// Secure is implemented by transports that are "always secure" from
// the session's perspective — they never offer STARTTLS because the
// channel is already protected (the TLS decorator once handshaked,
// and the QUIC transport from first connect).
type Secure interface {
	Secured() bool
}
