/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"compress/zlib"
	"context"
	"crypto/tls"
	"io"
	"sync/atomic"
	"time"

	quic "github.com/lucas-clemente/quic-go"
	"github.com/nathan130200/goloox/log"
)

// QUICTransport is a fourth byte transport variant alongside direct
// TCP, TLS, and BOSH, for deployments that want a low-latency,
// always-encrypted channel. Like the TLS decorator it is always
// secure: Connect never negotiates STARTTLS because the QUIC
// handshake already encrypts the channel.
type QUICTransport struct {
	addr   string
	tlsCfg *tls.Config
	log    *log.Logger

	session quic.Session
	stream  quic.Stream

	// compress, when set, wraps the single QUIC stream in a zlib
	// reader/writer pair, as the compress package's decorator does for
	// other transports; here the zlib pair sits directly on the
	// quic.Stream instead of being composed via that decorator.
	compress bool
	zr       io.ReadCloser
	zw       *zlib.Writer

	state   State
	handler Handler

	sent, recv uint64
}

// NewQUICTransport wraps an already-accepted QUIC session/stream pair
// (used on the accept side of a listener).
func NewQUICTransport(session quic.Session, stream quic.Stream, compress bool, logger *log.Logger) *QUICTransport {
	if logger == nil {
		logger = log.Nop()
	}
	t := &QUICTransport{session: session, stream: stream, compress: compress, log: logger, state: Connected}
	t.initCompression()
	return t
}

// NewQUICDialTransport builds a QUICTransport that dials addr on
// Connect, the client-side counterpart to NewQUICTransport's
// accept-side construction.
func NewQUICDialTransport(addr string, tlsCfg *tls.Config, compress bool, logger *log.Logger) *QUICTransport {
	if logger == nil {
		logger = log.Nop()
	}
	return &QUICTransport{addr: addr, tlsCfg: tlsCfg, compress: compress, log: logger}
}

func (t *QUICTransport) initCompression() {
	if !t.compress || t.stream == nil {
		return
	}
	t.zw = zlib.NewWriter(t.stream)
}

func (t *QUICTransport) Connect() error {
	if t.session != nil {
		// already an accepted session; nothing to dial.
		t.state = Connected
		if t.handler != nil {
			t.handler.OnConnect()
		}
		return nil
	}
	t.state = Connecting
	sess, err := quic.DialAddr(t.addr, t.tlsCfg, nil)
	if err != nil {
		t.state = Disconnected
		return err
	}
	stream, err := sess.OpenStreamSync(context.Background())
	if err != nil {
		_ = sess.CloseWithError(0, "stream open failed")
		t.state = Disconnected
		return err
	}
	t.session = sess
	t.stream = stream
	t.initCompression()
	t.state = Connected
	if t.handler != nil {
		t.handler.OnConnect()
	}
	return nil
}

func (t *QUICTransport) Disconnect(reason Reason) {
	if t.state == Disconnected {
		return
	}
	if t.zw != nil {
		_ = t.zw.Close()
	}
	if t.stream != nil {
		_ = t.stream.Close()
	}
	if t.session != nil {
		_ = t.session.CloseWithError(0, reason.String())
	}
	t.state = Disconnected
	if t.handler != nil {
		t.handler.OnDisconnect(reason, nil)
	}
}

func (t *QUICTransport) Send(data []byte) bool {
	if t.state != Connected || t.stream == nil {
		return false
	}
	var n int
	var err error
	if t.zw != nil {
		n, err = t.zw.Write(data)
		if err == nil {
			err = t.zw.Flush()
		}
	} else {
		n, err = t.stream.Write(data)
	}
	atomic.AddUint64(&t.sent, uint64(n))
	if err != nil {
		t.log.Errorf("quic transport write error: %v", err)
		t.Disconnect(ReasonError)
		return false
	}
	return true
}

func (t *QUICTransport) Recv(timeout time.Duration) error {
	if t.state != Connected || t.stream == nil {
		return nil
	}
	if timeout > 0 {
		_ = t.stream.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = t.stream.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 4096)
	var n int
	var err error
	if t.compress {
		if t.zr == nil {
			t.zr, err = zlib.NewReader(t.stream)
			if err != nil {
				return nil // not enough bytes yet for the zlib header
			}
		}
		n, err = t.zr.Read(buf)
	} else {
		n, err = t.stream.Read(buf)
	}
	if n > 0 {
		atomic.AddUint64(&t.recv, uint64(n))
		if t.handler != nil {
			t.handler.OnData(buf[:n])
		}
	}
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		t.Disconnect(ReasonPeerClosed)
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}

func (t *QUICTransport) SetHandler(h Handler) { t.handler = h }

func (t *QUICTransport) State() State { return t.state }

func (t *QUICTransport) Kind() Kind { return KindQUIC }

func (t *QUICTransport) NewInstance() Transport {
	return NewQUICDialTransport(t.addr, t.tlsCfg, t.compress, t.log)
}

func (t *QUICTransport) Statistics() (sent, received uint64) {
	return atomic.LoadUint64(&t.sent), atomic.LoadUint64(&t.recv)
}

// Secured reports true whenever the transport is connected: a QUIC
// transport is encrypted from first connect, so the session never
// offers STARTTLS over it.
func (t *QUICTransport) Secured() bool { return t.state == Connected }
