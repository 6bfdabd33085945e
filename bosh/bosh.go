/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package bosh implements the XEP-0124 long-polling HTTP tunnel as a
// transport.Transport: a session talking to a BOSH gateway sees the
// same Connect/Send/Recv/OnData contract as a direct socket, with the
// request/response cycle and rid/sid bookkeeping hidden behind it.
package bosh

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nathan130200/goloox/log"
	"github.com/nathan130200/goloox/transport"
	"github.com/sony/gobreaker"
)

// Mode selects one of the three BOSH connection-reassignment
// disciplines.
type Mode int

const (
	Legacy Mode = iota
	Persistent
	Pipelining
)

const (
	defaultPath     = "/http-bind/"
	defaultRequests = 2
	defaultHold     = 1
	defaultWait     = 60 * time.Second
	namespace       = "http://jabber.org/protocol/httpbind"
	xmppNamespace   = "urn:xmpp:xbosh"
)

// Config describes a BOSH endpoint and the connection discipline to
// use against it.
type Config struct {
	// Domain is the XMPP domain this session authenticates to; it is
	// also the HTTP Host unless URL overrides it.
	Domain string
	// URL is the gateway's full http-bind endpoint, e.g.
	// "https://im.example.com/http-bind/". If empty, it is derived
	// from Domain and Path over https.
	URL string
	// Path is used only when URL is empty; defaults to "/http-bind/".
	Path string
	// Route, when set, is passed as the bootstrap request's route
	// attribute (used by gateways multiplexing several backends).
	Route string
	XMLLang string

	Mode Mode

	// Requests/Hold/Wait are the client's requested negotiation
	// values; the session adopts the minimum of these and whatever
	// the gateway offers back.
	Requests int
	Hold     int
	Wait     time.Duration

	Client *http.Client
	Logger *log.Logger
}

func (c Config) url() string {
	if c.URL != "" {
		return c.URL
	}
	path := c.Path
	if path == "" {
		path = defaultPath
	}
	return fmt.Sprintf("https://%s%s", c.Domain, path)
}

// Transport is the BOSH byte transport. A single Transport instance
// owns one BOSH session (one sid); Requests
// governs how many HTTP round trips it keeps concurrently
// outstanding.
type Transport struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *log.Logger
	handler transport.Handler

	mu         sync.Mutex
	state      transport.State
	sid        string
	rid        uint64
	requests   int
	hold       int
	wait       time.Duration
	pollingMin time.Duration
	lastEmpty  time.Time
	active     int
	sendBuf    bytes.Buffer
	restarting bool

	// sawFirstOpen distinguishes the session's very first stream-open
	// Send (which mirrors the stream the bootstrap POST already
	// opened, so it is answered locally) from every later one (a real
	// restart, which needs its own HTTP round trip).
	sawFirstOpen bool
	// bootstrapInner holds any stanzas the bootstrap response carried
	// inline (typically <stream:features>) until the session's first
	// stream-open Send asks for the prologue that precedes them.
	bootstrapInner []byte

	results chan result

	sent, recv uint64
}

type result struct {
	inner   []byte
	attrs   map[string]string
	err     error
	restart bool
}

// New builds a disconnected Transport. NewInstance clones its Config
// into a fresh, disconnected Transport; the Transport itself never
// calls NewInstance, and its HTTP connections are pooled by the
// http.Client rather than by separate inner transports.
func New(cfg Config) *Transport {
	if cfg.Requests <= 0 {
		cfg.Requests = defaultRequests
	}
	if cfg.Hold <= 0 {
		cfg.Hold = defaultHold
	}
	if cfg.Wait <= 0 {
		cfg.Wait = defaultWait
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Wait + 10*time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Transport{
		cfg:    cfg,
		client: cfg.Client,
		log:    logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "bosh",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		requests: cfg.Requests,
		hold:     cfg.Hold,
		wait:     cfg.Wait,
	}
}

func seedRID() uint64 {
	id := uuid.New()
	b, _ := id.MarshalBinary()
	v := binary.BigEndian.Uint64(b[:8])
	return v &^ (uint64(1) << 63)
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	t.state = transport.Connecting
	t.rid = seedRID()
	body := fmt.Sprintf(
		`<body content='text/xml; charset=utf-8' hold='%d' rid='%d' ver='1.6' wait='%d' ack='0' xml:lang='%s' xmpp:version='1.0' to='%s' xmlns='%s' xmlns:xmpp='%s'%s/>`,
		t.cfg.Hold, t.rid, int(t.cfg.Wait/time.Second), orDefault(t.cfg.XMLLang, "en"), t.cfg.Domain, namespace, xmppNamespace, routeAttr(t.cfg.Route))
	t.mu.Unlock()

	raw, err := t.doRequest([]byte(body))
	if err != nil {
		t.mu.Lock()
		t.state = transport.Disconnected
		t.mu.Unlock()
		return err
	}
	attrs, inner, err := parseBody(raw)
	if err != nil {
		t.mu.Lock()
		t.state = transport.Disconnected
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.sid = attrs["sid"]
	t.requests = minPositive(t.requests, atoiOr(attrs["requests"], t.requests))
	t.hold = minPositive(t.hold, atoiOr(attrs["hold"], t.hold))
	t.wait = minDuration(t.wait, time.Duration(atoiOr(attrs["wait"], int(t.wait/time.Second)))*time.Second)
	t.pollingMin = time.Duration(atoiOr(attrs["polling"], 2)) * time.Second
	t.state = transport.Connected
	t.results = make(chan result, t.hold+t.requests)
	t.sawFirstOpen = false
	t.bootstrapInner = inner
	hold := t.hold
	t.mu.Unlock()

	t.log.Infof("bosh session established sid=%s requests=%d hold=%d wait=%s", t.sid, t.requests, t.hold, t.wait)

	// The bootstrap POST already opened the stream; the prologue and
	// any inline <stream:features> it carried are handed to the
	// handler from Send, in response to the session's own
	// stream-open write, not here (see isStreamRestart/Send below).
	if t.handler != nil {
		t.handler.OnConnect()
	}

	for i := 0; i < hold-1; i++ {
		t.dispatch(nil)
	}
	return nil
}

// streamPrologue synthesizes the `<?xml?><stream:stream …>` header a
// direct socket would have sent the session's parser, since the
// session core itself never sees raw BOSH bodies. It must be
// re-emitted every time the session reopens the stream: once right
// after the bootstrap response, and again after every later restart
// (STARTTLS, compression, SASL success), since the session resets its
// parser to Initial each time and rejects any child arriving without a
// fresh <stream:stream> root.
func (t *Transport) streamPrologue() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return []byte(fmt.Sprintf(
		"<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' from='%s' id='%s' version='1.0'>",
		t.cfg.Domain, t.sid))
}

var streamOpenMarker = []byte("<stream:stream")

// isStreamRestart recognizes the literal stream-open bytes the
// session core sends after Connect and after STARTTLS/compression/
// SASL success. Over a direct socket those bytes are the restart;
// over BOSH they must instead trigger an `xmpp:restart='true'` body
// (or, the first time, just the locally-synthesized prologue), never
// be placed in a stanza payload themselves. Matched as the element
// immediately following an optional `<?xml …?>` declaration, not as a
// substring search, so a stanza payload that merely quotes
// "<stream:stream" in character data cannot be misrouted into a
// restart.
func isStreamRestart(data []byte) bool {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("<?xml")) {
		idx := bytes.Index(data, []byte("?>"))
		if idx < 0 {
			return false
		}
		data = bytes.TrimSpace(data[idx+2:])
	}
	return bytes.HasPrefix(data, streamOpenMarker)
}

func (t *Transport) Send(data []byte) bool {
	t.mu.Lock()
	if t.state != transport.Connected {
		t.mu.Unlock()
		return false
	}
	if isStreamRestart(data) {
		if !t.sawFirstOpen {
			// This is the session mirroring the stream the bootstrap
			// POST already opened; answer it locally instead of
			// spending another HTTP round trip on a gateway that has
			// nothing new to say.
			t.sawFirstOpen = true
			pending := t.bootstrapInner
			t.bootstrapInner = nil
			t.mu.Unlock()
			if t.handler != nil {
				t.handler.OnData(t.streamPrologue())
				if len(pending) > 0 {
					t.handler.OnData(pending)
				}
			}
			return true
		}
		t.restarting = true
		t.mu.Unlock()
		t.dispatch(nil)
		return true
	}
	t.sendBuf.Write(data)
	full := t.sendBuf.Len() > 0 && t.active < t.requests
	var payload []byte
	if full {
		payload = t.drainLocked()
	}
	t.mu.Unlock()
	if full {
		t.dispatch(payload)
	}
	return true
}

// drainLocked removes and returns the buffered payload. Caller must
// hold t.mu.
func (t *Transport) drainLocked() []byte {
	payload := append([]byte(nil), t.sendBuf.Bytes()...)
	t.sendBuf.Reset()
	return payload
}

// dispatch issues one HTTP round trip carrying payload (nil for an
// empty poll or a bare restart body) and pushes its outcome onto the
// results channel. It runs on its own goroutine: BOSH's hold/
// pipelining modes require genuinely concurrent outstanding requests,
// which a single caller-driven Recv loop cannot provide by itself.
func (t *Transport) dispatch(payload []byte) {
	t.mu.Lock()
	t.rid++
	rid := t.rid
	sid := t.sid
	restart := t.restarting
	t.restarting = false
	t.active++
	resultsCh := t.results
	t.mu.Unlock()

	var body string
	if restart {
		body = fmt.Sprintf(`<body rid='%d' sid='%s' to='%s' xml:lang='en' xmpp:restart='true' xmlns='%s' xmlns:xmpp='%s'/>`, rid, sid, t.cfg.Domain, namespace, xmppNamespace)
	} else {
		body = fmt.Sprintf(`<body rid='%d' sid='%s' xmlns='%s'>%s</body>`, rid, sid, namespace, payload)
	}

	go func() {
		raw, err := t.doRequest([]byte(body))
		t.mu.Lock()
		t.active--
		t.mu.Unlock()
		if err != nil {
			resultsCh <- result{err: err, restart: restart}
			return
		}
		attrs, inner, err := parseBody(raw)
		resultsCh <- result{inner: inner, attrs: attrs, err: err, restart: restart}
	}()
}

func (t *Transport) Recv(timeout time.Duration) error {
	t.mu.Lock()
	if t.state != transport.Connected {
		t.mu.Unlock()
		return nil
	}
	ch := t.results
	needsPoll := t.active == 0 && t.sendBuf.Len() == 0 && time.Since(t.lastEmpty) >= t.pollingMin
	t.mu.Unlock()

	if needsPoll {
		t.mu.Lock()
		t.lastEmpty = timeNow()
		t.mu.Unlock()
		t.dispatch(nil)
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case r := <-ch:
		return t.handleResult(r)
	case <-timer:
		return nil
	}
}

func (t *Transport) handleResult(r result) error {
	if r.err != nil {
		t.log.Errorf("bosh request error: %v", r.err)
		t.Disconnect(transport.ReasonError)
		return r.err
	}
	if r.attrs["type"] == "terminate" {
		t.log.Infof("bosh session terminated by peer: %s", r.attrs["condition"])
		t.Disconnect(transport.ReasonStreamClosed)
		return nil
	}
	if r.restart && t.handler != nil {
		// This response answers an xmpp:restart='true' body: the
		// session reset its parser to Initial before sending that
		// restart, so it needs a fresh <stream:stream> root before
		// any of the response's children, exactly as it would after
		// a direct socket's STARTTLS/compression/SASL restart.
		t.handler.OnData(t.streamPrologue())
	}
	if len(r.inner) > 0 && t.handler != nil {
		t.recv += uint64(len(r.inner))
		t.handler.OnData(r.inner)
	}

	t.mu.Lock()
	pending := t.sendBuf.Len() > 0 && t.active < t.requests
	var payload []byte
	if pending {
		payload = t.drainLocked()
	}
	keepPolling := t.hold > 0 && t.active < t.hold && t.cfg.Mode != Legacy
	t.mu.Unlock()

	if pending {
		t.dispatch(payload)
	} else if keepPolling {
		t.dispatch(nil)
	}
	return nil
}

func (t *Transport) Disconnect(reason transport.Reason) {
	t.mu.Lock()
	if t.state == transport.Disconnected {
		t.mu.Unlock()
		return
	}
	payload := t.drainLocked()
	rid, sid := t.rid+1, t.sid
	t.rid = rid
	t.state = transport.Disconnected
	t.mu.Unlock()

	body := fmt.Sprintf(`<body rid='%d' sid='%s' type='terminate' xmlns='%s'>%s</body>`, rid, sid, namespace, payload)
	_, _ = t.doRequest([]byte(body))

	if t.handler != nil {
		t.handler.OnDisconnect(reason, nil)
	}
}

func (t *Transport) SetHandler(h transport.Handler) { t.handler = h }

func (t *Transport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Kind() transport.Kind { return transport.KindBOSH }

func (t *Transport) NewInstance() transport.Transport {
	return New(t.cfg)
}

func (t *Transport) Statistics() (sent, received uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.recv
}

// doRequest performs one POST through the circuit breaker, tripping
// it after a run of consecutive transport failures so a gateway
// outage fails fast instead of piling up timed-out goroutines.
func (t *Transport) doRequest(body []byte) ([]byte, error) {
	out, err := t.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest(http.MethodPost, t.cfg.url(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Host = t.cfg.Domain
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		if t.cfg.Mode == Legacy {
			req.Close = true
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("bosh: gateway returned HTTP %d", resp.StatusCode)
		}
		t.mu.Lock()
		t.sent += uint64(len(body))
		t.mu.Unlock()
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// parseBody extracts a <body> element's attributes and the raw bytes
// of its children, so the children can be re-emitted byte-for-byte to
// the session's own stream parser rather than re-serialized.
func parseBody(raw []byte) (attrs map[string]string, inner []byte, err error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	var start, lastOffset int64
	for {
		lastOffset = dec.InputOffset()
		tok, terr := dec.Token()
		if terr != nil {
			if terr == io.EOF {
				break
			}
			return nil, nil, terr
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if depth == 0 && se.Name.Local == "body" {
				attrs = make(map[string]string, len(se.Attr))
				for _, a := range se.Attr {
					attrs[a.Name.Local] = a.Value
				}
				start = dec.InputOffset()
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 && attrs != nil {
				return attrs, raw[start:lastOffset], nil
			}
		}
	}
	if attrs == nil {
		return nil, nil, fmt.Errorf("bosh: response did not contain a <body> element")
	}
	return attrs, nil, nil
}

func routeAttr(route string) string {
	if route == "" {
		return ""
	}
	return fmt.Sprintf(" route='%s'", route)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoiOr(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

func minPositive(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// timeNow is split out so tests can't accidentally depend on wall
// clock behavior creeping into deterministic assertions elsewhere.
func timeNow() time.Time { return time.Now() }
