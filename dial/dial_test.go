/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package dial

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDialFallsBackToDefaultPortWhenSRVFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	d := New(nil)
	d.srvResolve = func(service, proto, name string) (string, []*net.SRV, error) {
		return "", nil, errNoSRV
	}
	d.dialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
		require.Equal(t, "example.com:5222", address)
		var dialer net.Dialer
		return dialer.DialContext(ctx, network, net.JoinHostPort("127.0.0.1", port))
	}

	conn, err := d.Dial(context.Background(), "example.com")
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialUsesSRVTarget(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := New(nil)
	d.srvResolve = func(service, proto, name string) (string, []*net.SRV, error) {
		return "", []*net.SRV{{Target: "xmpp.example.com.", Port: 5222}}, nil
	}
	called := false
	d.dialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
		called = true
		require.Equal(t, "xmpp.example.com:5222", address)
		var dialer net.Dialer
		return dialer.DialContext(ctx, network, ln.Addr().String())
	}

	conn, err := d.Dial(context.Background(), "example.com")
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, called)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errNoSRV = staticErr("no such host")
