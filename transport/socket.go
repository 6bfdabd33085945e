/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/nathan130200/goloox/log"
)

// SocketTransport is the direct-TCP byte transport. It wraps a
// dialer function rather than an already-open net.Conn so
// that NewInstance can clone its configuration (address, dial
// function, logger) into a fresh, disconnected peer.
type SocketTransport struct {
	dial    func() (net.Conn, error)
	log     *log.Logger
	readBuf int

	conn    net.Conn
	state   State
	handler Handler

	sent, recv uint64
}

// NewSocketTransport builds a SocketTransport that dials addr over
// TCP on Connect. readBuf sizes the per-Recv read buffer; 0 selects a
// 4096-byte default.
func NewSocketTransport(addr string, readBuf int, logger *log.Logger) *SocketTransport {
	if logger == nil {
		logger = log.Nop()
	}
	if readBuf <= 0 {
		readBuf = 4096
	}
	return &SocketTransport{
		dial:    func() (net.Conn, error) { return net.Dial("tcp", addr) },
		log:     logger,
		readBuf: readBuf,
	}
}

// NewSocketTransportDialer builds a SocketTransport around an
// arbitrary dial function, used by dial.Dialer to hand the session a
// transport whose Connect performs SRV-resolved dialing instead of a
// fixed address.
func NewSocketTransportDialer(dial func() (net.Conn, error), readBuf int, logger *log.Logger) *SocketTransport {
	if logger == nil {
		logger = log.Nop()
	}
	if readBuf <= 0 {
		readBuf = 4096
	}
	return &SocketTransport{dial: dial, log: logger, readBuf: readBuf}
}

func (t *SocketTransport) Connect() error {
	t.state = Connecting
	conn, err := t.dial()
	if err != nil {
		t.state = Disconnected
		return err
	}
	t.conn = conn
	t.state = Connected
	t.log.Debugf("socket transport connected to %s", conn.RemoteAddr())
	if t.handler != nil {
		t.handler.OnConnect()
	}
	return nil
}

func (t *SocketTransport) Disconnect(reason Reason) {
	if t.state == Disconnected {
		return
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.state = Disconnected
	if t.handler != nil {
		t.handler.OnDisconnect(reason, nil)
	}
}

func (t *SocketTransport) Send(data []byte) bool {
	if t.state != Connected || t.conn == nil {
		return false
	}
	n, err := t.conn.Write(data)
	atomic.AddUint64(&t.sent, uint64(n))
	if err != nil {
		t.log.Errorf("socket transport write error: %v", err)
		t.Disconnect(ReasonError)
		return false
	}
	return true
}

func (t *SocketTransport) Recv(timeout time.Duration) error {
	if t.state != Connected || t.conn == nil {
		return nil
	}
	if timeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, t.readBuf)
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
		reason := ReasonPeerClosed
		if err.Error() != "EOF" {
			reason = ReasonError
		}
		t.Disconnect(reason)
		return err
	}
	return nil
}

func (t *SocketTransport) SetHandler(h Handler) { t.handler = h }

func (t *SocketTransport) State() State { return t.state }

func (t *SocketTransport) Kind() Kind { return KindSocket }

func (t *SocketTransport) NewInstance() Transport {
	return &SocketTransport{dial: t.dial, log: t.log, readBuf: t.readBuf}
}

func (t *SocketTransport) Statistics() (sent, received uint64) {
	return atomic.LoadUint64(&t.sent), atomic.LoadUint64(&t.recv)
}

// Conn exposes the underlying net.Conn once connected, used by the
// TLS decorator to wrap it and by tests needing direct access. It
// returns nil before Connect succeeds.
func (t *SocketTransport) Conn() net.Conn { return t.conn }
