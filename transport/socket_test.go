/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	connected    bool
	disconnected bool
	reason       Reason
	data         [][]byte
}

func (h *recordingHandler) OnConnect() { h.connected = true }
func (h *recordingHandler) OnDisconnect(reason Reason, err error) {
	h.disconnected = true
	h.reason = reason
}
func (h *recordingHandler) OnData(data []byte) {
	cp := append([]byte(nil), data...)
	h.data = append(h.data, cp)
}

func TestSocketTransportConnectSendRecv(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	h := &recordingHandler{}
	tr := NewSocketTransport(ln.Addr().String(), 0, nil)
	tr.SetHandler(h)
	require.NoError(t, tr.Connect())
	require.True(t, h.connected)
	require.Equal(t, Connected, tr.State())
	require.Equal(t, KindSocket, tr.Kind())

	server := <-accepted
	defer server.Close()

	_, err = server.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tr.Recv(time.Second))
	require.Len(t, h.data, 1)
	require.Equal(t, "hello", string(h.data[0]))

	require.True(t, tr.Send([]byte("world")))
	buf := make([]byte, 5)
	_, err = server.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf))

	sent, recv := tr.Statistics()
	require.Equal(t, uint64(5), sent)
	require.Equal(t, uint64(5), recv)
}

func TestSocketTransportRecvTimeoutIsNotAnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()

	tr := NewSocketTransport(ln.Addr().String(), 0, nil)
	require.NoError(t, tr.Connect())
	require.NoError(t, tr.Recv(20*time.Millisecond))
	require.Equal(t, Connected, tr.State())
}

func TestSocketTransportDisconnectNotifiesHandlerOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	h := &recordingHandler{}
	tr := NewSocketTransport(ln.Addr().String(), 0, nil)
	tr.SetHandler(h)
	require.NoError(t, tr.Connect())

	tr.Disconnect(ReasonUser)
	require.True(t, h.disconnected)
	require.Equal(t, ReasonUser, h.reason)
	require.Equal(t, Disconnected, tr.State())

	h.disconnected = false
	tr.Disconnect(ReasonError)
	require.False(t, h.disconnected, "a second Disconnect must be a no-op")
}

func TestNewInstanceClonesConfigNotState(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	tr := NewSocketTransport(ln.Addr().String(), 0, nil)
	require.NoError(t, tr.Connect())
	defer (<-accepted).Close()

	clone := tr.NewInstance()
	require.Equal(t, Disconnected, clone.State())
	require.Equal(t, KindSocket, clone.Kind())
}
