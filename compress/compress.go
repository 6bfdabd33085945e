/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package compress implements the zlib stream-compression transport
// decorator: once the server replies <compressed/> to a
// <compress><method>zlib</method></compress> request, every byte
// crossing the transport in either direction is deflate-framed.
// Structurally it mirrors the transport.TLSTransport decorator (own
// the inner transport, subscribe to its events, re-expose
// transport.Transport), but since compression operates on the byte
// stream rather than the connection itself it subscribes to the
// inner transport's callbacks instead of reaching for a raw net.Conn.
package compress

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/nathan130200/goloox/log"
	"github.com/nathan130200/goloox/transport"
)

// Method is the compression method negotiated; zlib (RFC 1950) is the
// only one currently supported.
const Method = "zlib"

// errSendFailed is returned internally when the inner transport
// rejects a write the zlib writer attempted to flush.
var errSendFailed = errors.New("compress: inner transport rejected write")

// feeder is an io.Reader fed incrementally by OnData callbacks. It
// never blocks: Read returns (0, nil) when no buffered bytes are
// available yet, which flate's decompressor tolerates by itself
// returning a short read rather than erroring, exactly the behavior
// an incremental, non-blocking single-threaded loop needs.
type feeder struct {
	buf bytes.Buffer
}

func (f *feeder) push(p []byte) { f.buf.Write(p) }

func (f *feeder) Read(p []byte) (int, error) {
	if f.buf.Len() == 0 {
		return 0, nil
	}
	return f.buf.Read(p)
}

// sendWriter adapts a transport.Transport's Send into an io.Writer the
// zlib.Writer can target; each Write is flushed upward inline.
type sendWriter struct {
	inner transport.Transport
}

func (w sendWriter) Write(p []byte) (int, error) {
	if !w.inner.Send(p) {
		return 0, errSendFailed
	}
	return len(p), nil
}

// Transport wraps inner with zlib compression in both directions.
type Transport struct {
	inner transport.Transport
	log   *log.Logger

	feeder *feeder
	zr     io.Reader

	zw *zlib.Writer

	handler transport.Handler

	sent, recv uint64
}

// New wraps inner with zlib compression and installs itself as
// inner's event sink so inbound bytes are inflated before reaching
// the caller's handler.
func New(inner transport.Transport, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Nop()
	}
	t := &Transport{inner: inner, log: logger, feeder: &feeder{}}
	t.zw = zlib.NewWriter(sendWriter{inner: inner})
	inner.SetHandler(t)
	return t
}

// the following three methods implement transport.Handler, receiving
// inner's raw events.

func (t *Transport) OnConnect() {
	if t.handler != nil {
		t.handler.OnConnect()
	}
}

func (t *Transport) OnDisconnect(reason transport.Reason, err error) {
	if t.handler != nil {
		t.handler.OnDisconnect(reason, err)
	}
}

func (t *Transport) OnData(data []byte) {
	t.feeder.push(data)
	if t.zr == nil {
		r, err := zlib.NewReader(t.feeder)
		if err != nil {
			// not enough bytes yet for the zlib header; the pushed
			// bytes remain buffered in t.feeder for the next call.
			return
		}
		t.zr = r
	}
	for {
		buf := make([]byte, 4096)
		n, err := t.zr.Read(buf)
		if n > 0 {
			atomic.AddUint64(&t.recv, uint64(n))
			if t.handler != nil {
				t.handler.OnData(buf[:n])
			}
		}
		if err != nil || n == 0 {
			if err != nil && err != io.EOF {
				t.log.Errorf("compress transport inflate error: %v", err)
			}
			return
		}
	}
}

func (t *Transport) Connect() error { return t.inner.Connect() }

func (t *Transport) Disconnect(reason transport.Reason) { t.inner.Disconnect(reason) }

func (t *Transport) Send(data []byte) bool {
	if _, err := t.zw.Write(data); err != nil {
		t.log.Errorf("compress transport deflate write error: %v", err)
		return false
	}
	if err := t.zw.Flush(); err != nil {
		t.log.Errorf("compress transport flush error: %v", err)
		return false
	}
	atomic.AddUint64(&t.sent, uint64(len(data)))
	return true
}

func (t *Transport) Recv(timeout time.Duration) error { return t.inner.Recv(timeout) }

func (t *Transport) SetHandler(h transport.Handler) { t.handler = h }

func (t *Transport) State() transport.State { return t.inner.State() }

func (t *Transport) Kind() transport.Kind { return t.inner.Kind() }

func (t *Transport) NewInstance() transport.Transport {
	return New(t.inner.NewInstance(), t.log)
}

func (t *Transport) Statistics() (sent, received uint64) {
	return atomic.LoadUint64(&t.sent), atomic.LoadUint64(&t.recv)
}

// Secured delegates to the inner transport when it reports security,
// letting a TLS-then-compress stack answer correctly.
func (t *Transport) Secured() bool {
	if s, ok := t.inner.(transport.Secure); ok {
		return s.Secured()
	}
	return false
}
