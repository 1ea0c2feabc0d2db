package quic

import (
	"net"
	"testing"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/stretchr/testify/require"
)

func TestListenAndReadDatagram(t *testing.T) {
	addr, err := ma.Parse("/ip4/127.0.0.1/udp/0/quic")
	require.NoError(t, err)

	ln, err := Listen(addr)
	require.NoError(t, err)
	defer ln.Close()
	require.True(t, CanDial(ln.Multiaddr()))

	sender, err := net.Dial("udp", ln.conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte("hi"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _, err := ln.ReadDatagram(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))

	_, err = Dial(ln.Multiaddr())
	require.ErrorIs(t, err, ErrDialNotSupported)
}

func TestCanDialRejectsNonQuic(t *testing.T) {
	addr, err := ma.Parse("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	require.False(t, CanDial(addr))
}
