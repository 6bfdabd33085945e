/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package stream defines the XMPP stream negotiation state machine: a
// single State enum plus the stream-level error type. The negotiation
// step loop itself lives in the session package, which imports these
// values and reports the current State through Session.State.
package stream

//go:generate go run golang.org/x/tools/cmd/stringer -type=State

// State is the current position in the stream negotiation progression:
//
//	Disconnected → Connecting → Connected → StreamOpened →
//	FeaturesReceived → [TLS...]? → [Compression...]? →
//	[SASL...] | [IQAuth...] → ResourceBinding → SessionCreating? → Bound
//	→ Disconnected
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	StreamOpened
	FeaturesReceived
	TLSNegotiating
	TLSEstablished
	CompressionNegotiating
	CompressionEstablished
	SASLNegotiating
	SASLAuthenticated
	IQAuthNegotiating
	IQAuthenticated
	ResourceBinding
	SessionCreating
	Bound
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case StreamOpened:
		return "StreamOpened"
	case FeaturesReceived:
		return "FeaturesReceived"
	case TLSNegotiating:
		return "TLSNegotiating"
	case TLSEstablished:
		return "TLSEstablished"
	case CompressionNegotiating:
		return "CompressionNegotiating"
	case CompressionEstablished:
		return "CompressionEstablished"
	case SASLNegotiating:
		return "SASLNegotiating"
	case SASLAuthenticated:
		return "SASLAuthenticated"
	case IQAuthNegotiating:
		return "IQAuthNegotiating"
	case IQAuthenticated:
		return "IQAuthenticated"
	case ResourceBinding:
		return "ResourceBinding"
	case SessionCreating:
		return "SessionCreating"
	case Bound:
		return "Bound"
	default:
		return "Unknown"
	}
}

// Info carries the stream-open element's addressing, as seen from both
// directions (mirrors mellium's stream.Info struct, the in-pack
// reference for this split).
type Info struct {
	ID      string
	To      string
	From    string
	Version string
}
