/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package session implements the client-side session core: it owns
// the parser and the (possibly decorated) transport, drives feature
// negotiation, tracks outbound IQs by id, and dispatches inbound
// stanzas to registered handlers. It is a state machine keyed off the
// current stream.State, one handler method per state, but drives the
// client side of the exchange and runs single-threaded and
// cooperative rather than on an actor-loop goroutine.
package session

import (
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nathan130200/goloox/auth"
	"github.com/nathan130200/goloox/bind"
	"github.com/nathan130200/goloox/compress"
	"github.com/nathan130200/goloox/jid"
	"github.com/nathan130200/goloox/log"
	"github.com/nathan130200/goloox/parser"
	"github.com/nathan130200/goloox/sasl"
	"github.com/nathan130200/goloox/stanza"
	"github.com/nathan130200/goloox/stream"
	"github.com/nathan130200/goloox/transport"
	pborman "github.com/pborman/uuid"
)

const (
	clientNamespace    = "jabber:client"
	componentNamespace = "jabber:component:accept"
	streamNSAttr       = "http://etherx.jabber.org/streams"
)

// Config carries the in-process knobs session construction needs;
// there is no CLI or environment-variable surface at this layer.
// LoadConfig can fill one from a YAML file.
type Config struct {
	Domain   string `yaml:"domain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Resource string `yaml:"resource"` // requested resourcepart; empty generates a fallback, see bind.GenerateResource
	Priority int8   `yaml:"priority"`

	ForceNonSASL      bool `yaml:"force_non_sasl"` // skip SASL entirely, negotiate jabber:iq:auth instead
	EnableCompression bool `yaml:"enable_compression"`

	TLSConfig *tls.Config `yaml:"-"`
	Logger    *log.Logger `yaml:"-"`
}

// ComponentConfig carries a Component's stream identity: a shared
// secret stands in for SASL and resource binding altogether.
type ComponentConfig struct {
	Domain string `yaml:"domain"`
	Secret string `yaml:"secret"`

	Logger *log.Logger `yaml:"-"`
}

// Handler callback types a caller registers to receive session-level
// notifications.
type (
	IQHandlerFunc       func(iq *stanza.Stanza)
	MessageHandlerFunc  func(msg *stanza.Stanza)
	PresenceHandlerFunc func(pres *stanza.Stanza)
	ConnectedListener   func()
	DisconnectListener  func(reason transport.Reason, err error)
)

type trackedEntry struct {
	handler IQHandlerFunc
}

// Session is the client-side session core. It is not goroutine-safe:
// exactly one owner drives it at a time, calling Recv in a loop.
type Session struct {
	cfg       Config
	component bool
	secret    string

	tr  transport.Transport
	p   *parser.Parser
	log *log.Logger

	diagnosticID string // per-session correlation id, github.com/pborman/uuid

	state    stream.State
	streamID string
	jid      *jid.JID

	tlsDone      bool
	compressDone bool
	authDone     bool
	bindDone     bool

	tracked map[string]trackedEntry

	nsHandlers   map[string]IQHandlerFunc
	msgHandlers  []MessageHandlerFunc
	presHandlers []PresenceHandlerFunc
	subHandlers  []PresenceHandlerFunc
	connected    []ConnectedListener
	disconnected []DisconnectListener

	features featureSet
	secured  bool

	mechanism sasl.Mechanism

	disconnectRequested bool
	disconnectReason    transport.Reason
}

func newSession(tr transport.Transport, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{
		tr:           tr,
		log:          logger,
		diagnosticID: pborman.New(),
		state:        stream.Disconnected,
		tracked:      make(map[string]trackedEntry),
		nsHandlers:   make(map[string]IQHandlerFunc),
	}
	s.p = parser.New(s)
	tr.SetHandler(s)
	return s
}

// NewClient builds a Session that runs the full client negotiation
// progression: optional STARTTLS, optional compression, SASL or
// legacy jabber:iq:auth, resource binding, optional session
// establishment.
func NewClient(tr transport.Transport, cfg Config) *Session {
	s := newSession(tr, cfg.Logger)
	s.cfg = cfg
	s.jid, _ = jid.New(cfg.Username, cfg.Domain, "")
	return s
}

// NewComponent builds a Session negotiating the jabber:component:accept
// handshake in place of TLS/SASL/bind.
func NewComponent(tr transport.Transport, cfg ComponentConfig) *Session {
	s := newSession(tr, cfg.Logger)
	s.component = true
	s.secret = cfg.Secret
	s.cfg = Config{Domain: cfg.Domain, Logger: cfg.Logger}
	s.jid, _ = jid.New("", cfg.Domain, "")
	return s
}

// JID returns the session's address: the bare configured JID before
// authentication, and the full bound JID once negotiation completes.
func (s *Session) JID() *jid.JID { return s.jid }

// State reports the session's current negotiation state.
func (s *Session) State() stream.State { return s.state }

// Connected reports whether negotiation has reached a usable state
// (resource bound, or handshake accepted for a Component).
func (s *Session) Connected() bool { return s.state == stream.Bound }

// OnIQNamespace registers handler to receive get/set IQs whose
// payload's first child is in namespace. Registering under an
// already-used namespace replaces the prior handler.
func (s *Session) OnIQNamespace(namespace string, handler IQHandlerFunc) {
	s.nsHandlers[namespace] = handler
}

// OnMessage registers handler to receive every inbound message stanza.
func (s *Session) OnMessage(handler MessageHandlerFunc) {
	s.msgHandlers = append(s.msgHandlers, handler)
}

// OnPresence registers handler to receive inbound presence stanzas
// that are not subscription management (see OnSubscription).
func (s *Session) OnPresence(handler PresenceHandlerFunc) {
	s.presHandlers = append(s.presHandlers, handler)
}

// OnSubscription registers handler to receive presence stanzas whose
// type is one of subscribe/subscribed/unsubscribe/unsubscribed.
func (s *Session) OnSubscription(handler PresenceHandlerFunc) {
	s.subHandlers = append(s.subHandlers, handler)
}

// OnConnected registers handler to be notified once negotiation
// reaches a usable state.
func (s *Session) OnConnected(handler ConnectedListener) {
	s.connected = append(s.connected, handler)
}

// OnDisconnected registers handler to be notified when the session
// tears down, for any reason.
func (s *Session) OnDisconnected(handler DisconnectListener) {
	s.disconnected = append(s.disconnected, handler)
}

// nextIQID produces a fresh outbound IQ id via google/uuid, distinct
// from the pborman/uuid this session uses for its diagnostic id and
// bind uses for a fallback resourcepart.
func (s *Session) nextIQID() string {
	return uuid.NewString()
}

// track registers handler to fire exactly once when a result/error IQ
// carrying id arrives.
func (s *Session) track(id string, handler IQHandlerFunc) {
	s.tracked[id] = trackedEntry{handler: handler}
}

// Connect establishes the transport and begins stream negotiation.
func (s *Session) Connect() error {
	if s.state != stream.Disconnected {
		return ErrAlreadyConnected
	}
	s.state = stream.Connecting
	if err := s.tr.Connect(); err != nil {
		s.state = stream.Disconnected
		return Wrap(err, "transport connect failed")
	}
	return nil
}

// Recv pulls the next slice of I/O from the transport; the caller
// drives negotiation and dispatch entirely by calling this in a loop.
// All registered handler callbacks run inline within this call.
func (s *Session) Recv(timeout time.Duration) error {
	if s.disconnectRequested {
		s.teardown(s.disconnectReason, nil)
		return nil
	}
	return s.tr.Recv(timeout)
}

// Disconnect requests a graceful shutdown, effective on the next Recv.
func (s *Session) Disconnect(reason transport.Reason) {
	s.disconnectRequested = true
	s.disconnectReason = reason
}

// SendMessage, SendPresence and SendIQ deliver already-built stanzas;
// SendIQ additionally tracks the id for the reply.
func (s *Session) SendMessage(msg *stanza.Tag) bool { return s.sendTag(msg) }

func (s *Session) SendPresence(pres *stanza.Tag) bool { return s.sendTag(pres) }

func (s *Session) SendIQ(iq *stanza.Tag, onReply IQHandlerFunc) bool {
	if onReply != nil {
		s.track(iq.Attr("id"), onReply)
	}
	return s.sendTag(iq)
}

func (s *Session) teardown(reason transport.Reason, err error) {
	if s.state == stream.Disconnected {
		return
	}
	if s.tr.State() == transport.Connected {
		s.send([]byte("</stream:stream>"))
		s.tr.Disconnect(reason)
	}
	s.tracked = make(map[string]trackedEntry)
	s.state = stream.Disconnected
	s.disconnectRequested = false
	for _, l := range snapshotDisconnected(s.disconnected) {
		l(reason, err)
	}
}

func snapshotDisconnected(in []DisconnectListener) []DisconnectListener {
	out := make([]DisconnectListener, len(in))
	copy(out, in)
	return out
}

func snapshotConnected(in []ConnectedListener) []ConnectedListener {
	out := make([]ConnectedListener, len(in))
	copy(out, in)
	return out
}

func (s *Session) send(data []byte) bool { return s.tr.Send(data) }

func (s *Session) sendTag(t *stanza.Tag) bool { return s.send([]byte(t.String())) }

// ---- transport.Handler ----

func (s *Session) OnConnect() {
	s.p.Reset()
	s.state = stream.Connected
	s.secured = isSecureTransport(s.tr)
	s.openStream()
}

func (s *Session) OnDisconnect(reason transport.Reason, err error) {
	s.tracked = make(map[string]trackedEntry)
	s.state = stream.Disconnected
	for _, l := range snapshotDisconnected(s.disconnected) {
		l(reason, err)
	}
}

func (s *Session) OnData(data []byte) {
	if err := s.p.Feed(data); err != nil {
		s.log.Errorf("stream parse error: %v", err)
		s.teardown(transport.ReasonError, err)
	}
}

func isSecureTransport(tr transport.Transport) bool {
	if sec, ok := tr.(transport.Secure); ok {
		return sec.Secured()
	}
	return false
}

func (s *Session) namespace() string {
	if s.component {
		return componentNamespace
	}
	return clientNamespace
}

func (s *Session) openStream() {
	header := fmt.Sprintf(
		"<?xml version='1.0'?><stream:stream xmlns='%s' xmlns:stream='%s' to='%s' version='1.0'>",
		s.namespace(), streamNSAttr, s.cfg.Domain)
	s.send([]byte(header))
	s.state = stream.StreamOpened
}

// restart discards the parser state and re-sends the opening stream
// tag, as RFC 6120 §5.4.3.3/§6.3.5 require after STARTTLS, zlib
// compression, and SASL success each change the channel beneath the
// XML stream.
func (s *Session) restart() {
	s.p.Reset()
	s.openStream()
}

// ---- parser.Handler ----

func (s *Session) StreamOpen(name string, attrs []stanza.Attribute) {
	for _, a := range attrs {
		if a.Name == "id" {
			s.streamID = a.Value
		}
	}
	if s.component {
		s.sendComponentHandshake()
	}
}

func (s *Session) StreamClose() {
	s.teardown(transport.ReasonStreamClosed, nil)
}

func (s *Session) Element(tag *stanza.Tag) {
	if tag.Name() == "stream:error" {
		serr := stream.FromElement(tag)
		s.teardown(transport.ReasonError, serr)
		return
	}

	if s.component {
		s.handleComponentElement(tag)
		return
	}

	if localName(tag.Name()) == "features" && tag.Namespace() == "" {
		s.handleFeatures(tag)
		return
	}

	switch tag.Namespace() {
	case nsTLS:
		s.handleTLSResponse(tag)
		return
	case nsCompress:
		s.handleCompressionResponse(tag)
		return
	case sasl.Namespace:
		s.handleSASLResponse(tag)
		return
	}

	s.dispatchStanza(tag)
}

func localName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == ':' {
			return name[i+1:]
		}
	}
	return name
}

// ---- feature negotiation ----

func (s *Session) handleFeatures(tag *stanza.Tag) {
	s.features = parseFeatures(tag)
	s.state = stream.FeaturesReceived
	s.negotiateNext()
}

func (s *Session) negotiateNext() {
	switch {
	case !s.secured && !s.tlsDone && s.features.has(featStartTLS) && s.cfg.TLSConfig != nil:
		s.sendStartTLS()

	case s.cfg.EnableCompression && !s.compressDone && s.features.has(featCompressZlib):
		s.sendCompressionRequest()

	case !s.authDone:
		s.startAuth()

	case !s.bindDone:
		s.startBind()

	default:
		s.finish()
	}
}

func (s *Session) sendStartTLS() {
	s.state = stream.TLSNegotiating
	s.send([]byte(fmt.Sprintf("<starttls xmlns='%s'/>", nsTLS)))
}

func (s *Session) handleTLSResponse(tag *stanza.Tag) {
	switch localName(tag.Name()) {
	case "proceed":
		cfg := s.cfg.TLSConfig
		if cfg.ServerName == "" {
			clone := cfg.Clone()
			clone.ServerName = s.cfg.Domain
			cfg = clone
		}
		tlsTr := transport.NewTLSTransport(s.tr, cfg, s.log)
		tlsTr.SetHandler(s)
		s.tr = tlsTr
		s.tlsDone = true
		if err := tlsTr.Connect(); err != nil {
			s.teardown(transport.ReasonTLSFailed, err)
			return
		}
		// tlsTr.Connect's handshake fired OnConnect, which already
		// reset the parser and reopened the stream.
	case "failure":
		s.teardown(transport.ReasonTLSFailed, ErrTLSNotConfigured)
	default:
		s.dispatchStanza(tag)
	}
}

func (s *Session) sendCompressionRequest() {
	s.state = stream.CompressionNegotiating
	req := fmt.Sprintf("<compress xmlns='%s'><method>%s</method></compress>", nsCompress, compress.Method)
	s.send([]byte(req))
}

func (s *Session) handleCompressionResponse(tag *stanza.Tag) {
	switch localName(tag.Name()) {
	case "compressed":
		ct := compress.New(s.tr, s.log)
		ct.SetHandler(s)
		s.tr = ct
		s.compressDone = true
		s.restart()
	case "failure":
		s.teardown(transport.ReasonError, ErrCompressionFailed)
	default:
		s.dispatchStanza(tag)
	}
}

// startAuth picks SASL over legacy auth whenever both are offered and
// ForceNonSASL isn't set.
func (s *Session) startAuth() {
	haveCreds := s.cfg.Username != ""
	mechName := ""
	if !s.cfg.ForceNonSASL {
		mechName = pickMechanism(s.features, haveCreds)
	}
	if mechName == "" {
		if s.features.has(featIQAuth) {
			s.startLegacyAuth()
			return
		}
		s.teardown(transport.ReasonError, ErrNoSupportedAuth)
		return
	}
	s.startSASL(mechName)
}

func (s *Session) newMechanism(name string) sasl.Mechanism {
	creds := sasl.Credentials{Username: s.cfg.Username, Password: s.cfg.Password, Realm: s.cfg.Domain}
	switch name {
	case sasl.ScramSHA256:
		return sasl.NewScramSHA256(creds)
	case sasl.ScramSHA1:
		return sasl.NewScramSHA1(creds)
	case sasl.DigestMD5:
		return sasl.NewDigestMD5(creds, s.cfg.Domain)
	case sasl.Plain:
		return sasl.NewPlain(creds)
	case sasl.External:
		return sasl.NewExternal(s.cfg.Username)
	case sasl.Anonymous:
		return sasl.NewAnonymous("")
	default:
		return nil
	}
}

func (s *Session) startSASL(name string) {
	s.mechanism = s.newMechanism(name)
	s.state = stream.SASLNegotiating
	initial, err := s.mechanism.Start()
	if err != nil {
		s.teardown(transport.ReasonError, err)
		return
	}
	authTag := stanza.NewTagNS("auth", sasl.Namespace)
	authTag.SetAttribute("mechanism", name)
	if initial != nil {
		authTag.SetText(base64.StdEncoding.EncodeToString(initial))
	}
	s.sendTag(authTag)
}

func (s *Session) handleSASLResponse(tag *stanza.Tag) {
	switch localName(tag.Name()) {
	case "challenge":
		decoded, err := base64.StdEncoding.DecodeString(tag.Text())
		if err != nil {
			s.teardown(transport.ReasonError, err)
			return
		}
		resp, _, err := s.mechanism.Step(decoded)
		if err != nil {
			s.teardown(transport.ReasonError, err)
			return
		}
		respTag := stanza.NewTagNS("response", sasl.Namespace)
		if resp != nil {
			respTag.SetText(base64.StdEncoding.EncodeToString(resp))
		}
		s.sendTag(respTag)
	case "success":
		s.authDone = true
		s.state = stream.SASLAuthenticated
		s.restart()
	case "failure":
		s.teardown(transport.ReasonError, sasl.ErrAborted)
	default:
		s.dispatchStanza(tag)
	}
}

func (s *Session) startLegacyAuth() {
	s.state = stream.IQAuthNegotiating
	id := s.nextIQID()
	req := auth.NewFieldsRequest(id, s.cfg.Domain, s.cfg.Username)
	s.track(id, s.onLegacyFieldsResult)
	s.sendTag(req)
}

func (s *Session) onLegacyFieldsResult(reply *stanza.Stanza) {
	if reply.Type() == stanza.IQError {
		s.teardown(transport.ReasonError, ErrNoSupportedAuth)
		return
	}
	resource := s.cfg.Resource
	if resource == "" {
		resource = bind.GenerateResource()
	}
	id := s.nextIQID()
	resp := auth.BuildResponse(id, s.cfg.Username, resource, s.cfg.Password, s.streamID, reply.Tag)
	s.track(id, s.onLegacyAuthResult)
	s.sendTag(resp)
}

func (s *Session) onLegacyAuthResult(reply *stanza.Stanza) {
	if reply.Type() == stanza.IQError {
		s.teardown(transport.ReasonError, ErrNoSupportedAuth)
		return
	}
	s.authDone = true
	s.bindDone = true // legacy auth carries the resource itself; no separate bind step
	resource := s.cfg.Resource
	if resource == "" {
		resource = bind.GenerateResource()
	}
	s.jid, _ = jid.New(s.cfg.Username, s.cfg.Domain, resource)
	s.finish()
}

func (s *Session) startBind() {
	s.state = stream.ResourceBinding
	resource := s.cfg.Resource
	if resource == "" {
		resource = bind.GenerateResource()
	}
	id := s.nextIQID()
	req := bind.NewRequest(id, resource)
	s.track(id, s.onBindResult)
	s.sendTag(req)
}

func (s *Session) onBindResult(reply *stanza.Stanza) {
	if reply.Type() == stanza.IQError {
		s.teardown(transport.ReasonError, ErrBindFailed)
		return
	}
	j, err := bind.ParseResult(reply.Tag)
	if err != nil {
		s.teardown(transport.ReasonError, ErrBindFailed)
		return
	}
	s.jid = j
	s.bindDone = true
	if s.features.has(featSession) {
		s.startSessionEstablishment()
		return
	}
	s.finish()
}

func (s *Session) startSessionEstablishment() {
	s.state = stream.SessionCreating
	id := s.nextIQID()
	req := bind.NewSessionRequest(id)
	s.track(id, s.onSessionResult)
	s.sendTag(req)
}

func (s *Session) onSessionResult(reply *stanza.Stanza) {
	if reply.Type() == stanza.IQError {
		s.teardown(transport.ReasonError, ErrSessionFailed)
		return
	}
	s.finish()
}

func (s *Session) finish() {
	s.state = stream.Bound
	for _, l := range snapshotConnected(s.connected) {
		l()
	}
}

// ---- component handshake ----

// sendComponentHandshake sends SHA1(stream-id ‖ shared-secret)
// lower-case hex, per the jabber:component:accept handshake.
func (s *Session) sendComponentHandshake() {
	h := sha1.New()
	h.Write([]byte(s.streamID))
	h.Write([]byte(s.secret))
	digest := hex.EncodeToString(h.Sum(nil))
	handshake := stanza.NewTag("handshake")
	handshake.SetText(digest)
	s.sendTag(handshake)
	s.state = stream.SASLNegotiating // reused here as "awaiting handshake result"
}

func (s *Session) handleComponentElement(tag *stanza.Tag) {
	if localName(tag.Name()) == "handshake" {
		s.finish()
		return
	}
	s.dispatchStanza(tag)
}

// ---- stanza dispatch ----

func (s *Session) dispatchStanza(tag *stanza.Tag) {
	switch localName(tag.Name()) {
	case "iq":
		s.dispatchIQ(tag)
	case "message":
		st, err := stanza.FromTag(tag, stanza.KindMessage)
		if err != nil {
			return
		}
		for _, h := range snapshotMessageHandlers(s.msgHandlers) {
			h(st)
		}
	case "presence":
		s.dispatchPresence(tag)
	}
}

func (s *Session) dispatchIQ(tag *stanza.Tag) {
	st, err := stanza.FromTag(tag, stanza.KindIQ)
	if err != nil {
		return
	}

	if st.IsIQResponse() {
		if entry, ok := s.tracked[st.ID()]; ok {
			delete(s.tracked, st.ID())
			entry.handler(st)
		}
		return
	}

	if !st.IsIQGetOrSet() {
		return
	}

	if first := firstChild(tag); first != nil {
		if h, ok := s.nsHandlers[first.Namespace()]; ok {
			h(st)
			return
		}
	}

	s.sendTag(stanza.ServiceUnavailable(st.ID(), tag.Attr("from")))
}

func (s *Session) dispatchPresence(tag *stanza.Tag) {
	st, err := stanza.FromTag(tag, stanza.KindPresence)
	if err != nil {
		return
	}
	switch st.Type() {
	case stanza.PresenceSubscribe, stanza.PresenceSubscribed, stanza.PresenceUnsubscribe, stanza.PresenceUnsubscribed:
		for _, h := range snapshotPresenceHandlers(s.subHandlers) {
			h(st)
		}
	default:
		for _, h := range snapshotPresenceHandlers(s.presHandlers) {
			h(st)
		}
	}
}

func firstChild(tag *stanza.Tag) *stanza.Tag {
	children := tag.Children()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

func snapshotMessageHandlers(in []MessageHandlerFunc) []MessageHandlerFunc {
	out := make([]MessageHandlerFunc, len(in))
	copy(out, in)
	return out
}

func snapshotPresenceHandlers(in []PresenceHandlerFunc) []PresenceHandlerFunc {
	out := make([]PresenceHandlerFunc, len(in))
	copy(out, in)
	return out
}
