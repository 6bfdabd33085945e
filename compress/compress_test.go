/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package compress

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/nathan130200/goloox/transport"
	"github.com/stretchr/testify/require"
)

type rec struct {
	data [][]byte
}

func (r *rec) OnConnect()                                    {}
func (r *rec) OnDisconnect(reason transport.Reason, err error) {}
func (r *rec) OnData(data []byte) {
	r.data = append(r.data, append([]byte(nil), data...))
}

func TestCompressRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()

	clientInner := transport.NewSocketTransportDialer(func() (net.Conn, error) { return c1, nil }, 0, nil)
	serverInner := transport.NewSocketTransportDialer(func() (net.Conn, error) { return c2, nil }, 0, nil)
	require.NoError(t, clientInner.Connect())
	require.NoError(t, serverInner.Connect())

	clientTr := New(clientInner, nil)
	serverTr := New(serverInner, nil)

	serverRec := &rec{}
	serverTr.SetHandler(serverRec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = serverTr.Recv(200 * time.Millisecond)
			if len(bytes.Join(serverRec.data, nil)) >= len("hello compressed world") {
				return
			}
		}
	}()

	require.True(t, clientTr.Send([]byte("hello compressed world")))

	<-done
	require.Equal(t, "hello compressed world", string(bytes.Join(serverRec.data, nil)))

	sent, _ := clientTr.Statistics()
	require.Equal(t, uint64(len("hello compressed world")), sent)
}
