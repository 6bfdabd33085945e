/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package dial resolves and dials a client-to-server XMPP endpoint: an
// SRV lookup with a fixed-port TCP fallback. This is the address
// resolution step, handed to transport.NewSocketTransportDialer as its
// dial function.
package dial

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/nathan130200/goloox/log"
)

// defaultClientPort is RFC 6120's well-known client-to-server port,
// used when SRV resolution fails or returns no usable target.
const defaultClientPort = 5222

// srvService is the SRV service name clients query for, per RFC 6120
// §3.2 ("_xmpp-client._tcp").
const srvService = "xmpp-client"

type srvResolveFunc func(service, proto, name string) (cname string, addrs []*net.SRV, err error)
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Dialer resolves domain to a concrete address and dials it over TCP,
// mirroring s2s/dialer.go's Dialer interface (with its SCION branch
// removed).
type Dialer struct {
	srvResolve  srvResolveFunc
	dialContext dialFunc
	log         *log.Logger
}

// New builds a Dialer using the standard library's SRV resolver and a
// net.Dialer for the TCP connection.
func New(logger *log.Logger) *Dialer {
	if logger == nil {
		logger = log.Nop()
	}
	var d net.Dialer
	return &Dialer{srvResolve: net.LookupSRV, dialContext: d.DialContext, log: logger}
}

// Dial resolves domain's client-to-server endpoint and returns a
// connected net.Conn to it.
func (d *Dialer) Dial(ctx context.Context, domain string) (net.Conn, error) {
	_, addrs, err := d.srvResolve(srvService, "tcp", domain)
	if err != nil {
		d.log.Warnf("srv lookup for %s failed: %v", domain, err)
	}

	var target string
	if err != nil || len(addrs) == 0 || (len(addrs) == 1 && addrs[0].Target == ".") {
		target = net.JoinHostPort(domain, strconv.Itoa(defaultClientPort))
	} else {
		target = net.JoinHostPort(strings.TrimSuffix(addrs[0].Target, "."), strconv.Itoa(int(addrs[0].Port)))
	}
	d.log.Debugf("dialing %s", target)
	return d.dialContext(ctx, "tcp", target)
}

// DialFunc adapts Dial to the signature
// transport.NewSocketTransportDialer expects.
func (d *Dialer) DialFunc(ctx context.Context, domain string) func() (net.Conn, error) {
	return func() (net.Conn, error) { return d.Dial(ctx, domain) }
}
