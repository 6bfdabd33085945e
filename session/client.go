/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"context"
	"crypto/tls"

	"github.com/nathan130200/goloox/dial"
	"github.com/nathan130200/goloox/log"
	"github.com/nathan130200/goloox/transport"
)

// DialClient resolves cfg.Domain's client-to-server endpoint (SRV,
// falling back to the well-known port) and returns a Session ready to
// Connect. It is the common-case entry point; callers needing a
// pre-built Transport (a fixed address, an existing BOSH pool, a test
// double) should construct one directly and pass it to NewClient.
func DialClient(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	d := dial.New(logger)
	tr := transport.NewSocketTransportDialer(d.DialFunc(ctx, cfg.Domain), 0, logger)

	if cfg.TLSConfig == nil {
		cfg.TLSConfig = &tls.Config{ServerName: cfg.Domain}
	} else if cfg.TLSConfig.ServerName == "" {
		clone := cfg.TLSConfig.Clone()
		clone.ServerName = cfg.Domain
		cfg.TLSConfig = clone
	}

	return NewClient(tr, cfg), nil
}
