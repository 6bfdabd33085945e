/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync/atomic"
	"time"

	"github.com/nathan130200/goloox/log"
)

// ConnProvider is implemented by inner transports the TLS decorator
// can wrap: it needs the raw net.Conn to hand to tls.Client. Only
// SocketTransport implements it today; BOSH and QUIC are already
// channel-secure and are never wrapped.
type ConnProvider interface {
	Conn() net.Conn
}

// TLSTransport is the TLS-wrapping decorator: it owns an inner
// transport and a TLS engine, delegating Connect to the inner
// transport before performing its own handshake.
type TLSTransport struct {
	inner  Transport
	connOf ConnProvider
	config *tls.Config

	conn    *tls.Conn
	state   State
	handler Handler
	log     *log.Logger

	sent, recv uint64
}

// NewTLSTransport wraps inner (which must also implement ConnProvider)
// with a TLS engine configured by cfg. cfg.ServerName should already
// be set by the caller (the session, from the target domain).
func NewTLSTransport(inner Transport, cfg *tls.Config, logger *log.Logger) *TLSTransport {
	if logger == nil {
		logger = log.Nop()
	}
	connOf, _ := inner.(ConnProvider)
	return &TLSTransport{inner: inner, connOf: connOf, config: cfg, log: logger}
}

func (t *TLSTransport) Connect() error {
	if t.inner.State() != Connected {
		if err := t.inner.Connect(); err != nil {
			return err
		}
	}
	if t.connOf == nil {
		t.log.Errorf("tls transport: inner transport does not expose a raw net.Conn")
		t.Disconnect(ReasonTLSFailed)
		return errNoConnProvider
	}
	t.state = Connecting
	raw := t.connOf.Conn()
	tlsConn := tls.Client(raw, t.config)
	if err := tlsConn.Handshake(); err != nil {
		t.log.Errorf("tls handshake failed: %v", err)
		t.state = Disconnected
		if t.handler != nil {
			t.handler.OnDisconnect(ReasonTLSFailed, err)
		}
		return err
	}
	t.conn = tlsConn
	t.state = Connected
	t.log.Debugf("tls handshake complete (%s)", tlsConn.ConnectionState().Version)
	if t.handler != nil {
		t.handler.OnConnect()
	}
	return nil
}

func (t *TLSTransport) Disconnect(reason Reason) {
	if t.state == Disconnected {
		return
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.inner.Disconnect(reason)
	t.state = Disconnected
	if t.handler != nil {
		t.handler.OnDisconnect(reason, nil)
	}
}

func (t *TLSTransport) Send(data []byte) bool {
	if t.state != Connected || t.conn == nil {
		return false
	}
	n, err := t.conn.Write(data)
	atomic.AddUint64(&t.sent, uint64(n))
	if err != nil {
		t.log.Errorf("tls transport write error: %v", err)
		t.Disconnect(ReasonError)
		return false
	}
	return true
}

func (t *TLSTransport) Recv(timeout time.Duration) error {
	if t.state != Connected || t.conn == nil {
		return nil
	}
	if timeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 4096)
	n, err := t.conn.Read(buf)
	if n > 0 {
		atomic.AddUint64(&t.recv, uint64(n))
		if t.handler != nil {
			t.handler.OnData(buf[:n])
		}
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		t.Disconnect(ReasonPeerClosed)
		return err
	}
	return nil
}

func (t *TLSTransport) SetHandler(h Handler) { t.handler = h }

func (t *TLSTransport) State() State { return t.state }

func (t *TLSTransport) Kind() Kind { return t.inner.Kind() }

func (t *TLSTransport) NewInstance() Transport {
	return NewTLSTransport(t.inner.NewInstance(), t.config, t.log)
}

func (t *TLSTransport) Statistics() (sent, received uint64) {
	return atomic.LoadUint64(&t.sent), atomic.LoadUint64(&t.recv)
}

// Secured reports whether the TLS handshake has completed.
func (t *TLSTransport) Secured() bool { return t.state == Connected }

// PeerCertificates returns the certificate chain presented by the
// peer after a successful handshake, or nil before one completes.
// The core exposes the
// chain without baking in a pinning policy.
func (t *TLSTransport) PeerCertificates() []*x509.Certificate {
	if t.conn == nil {
		return nil
	}
	return t.conn.ConnectionState().PeerCertificates
}

var errNoConnProvider = tlsError("tls transport: inner transport has no raw connection to wrap")

type tlsError string

func (e tlsError) Error() string { return string(e) }
