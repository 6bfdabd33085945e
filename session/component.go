/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"github.com/nathan130200/goloox/log"
	"github.com/nathan130200/goloox/transport"
)

// DialComponent connects a jabber:component:accept stream to addr
// (a fixed host:port, since component connections are always
// explicitly configured rather than SRV-resolved) and returns a
// Session ready to Connect.
func DialComponent(addr string, cfg ComponentConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	tr := transport.NewSocketTransport(addr, 0, logger)
	return NewComponent(tr, cfg)
}
