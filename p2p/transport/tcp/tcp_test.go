package tcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/stretchr/testify/require"
)

func TestDialListenRoundTrip(t *testing.T) {
	listenAddr, err := ma.Parse("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)

	ln, err := Listen(listenAddr)
	require.NoError(t, err)
	defer ln.Close()

	require.True(t, CanDial(ln.Multiaddr()))

	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		conn, err := ln.Accept()
		require.NoError(t, err)
		defer conn.Close()
		buf := make([]byte, 5)
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Multiaddr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	<-accepted
}

func TestDialUnreachableTimesOut(t *testing.T) {
	addr, err := ma.Parse("/ip4/203.0.113.1/tcp/1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = Dial(ctx, addr)
	require.Error(t, err)
}
