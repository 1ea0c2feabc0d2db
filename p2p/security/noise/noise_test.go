package noise

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/stretchr/testify/require"
)

func genKeyPair(t *testing.T) peer.KeyPair {
	t.Helper()
	kp, err := peer.GenerateEd25519()
	require.NoError(t, err)
	return kp
}

// TestHandshakeAndTransport covers spec.md §8 property 8 ("Noise
// authentication"): after a successful handshake both sides agree on
// each other's peer ID and can exchange authenticated, encrypted data.
func TestHandshakeAndTransport(t *testing.T) {
	initKP := genKeyPair(t)
	respKP := genKeyPair(t)

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	type out struct {
		sc  *SecureConn
		err error
	}
	initCh := make(chan out, 1)
	respCh := make(chan out, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		sc, err := NewSession(ctx, c1, initKP, true)
		initCh <- out{sc, err}
	}()
	go func() {
		sc, err := NewSession(ctx, c2, respKP, false)
		respCh <- out{sc, err}
	}()

	initOut := <-initCh
	respOut := <-respCh
	require.NoError(t, initOut.err)
	require.NoError(t, respOut.err)

	initID, err := peer.FromPublicKey(initKP.Pub)
	require.NoError(t, err)
	respID, err := peer.FromPublicKey(respKP.Pub)
	require.NoError(t, err)

	require.True(t, initOut.sc.RemotePeer().Equal(respID))
	require.True(t, respOut.sc.RemotePeer().Equal(initID))
	require.True(t, initOut.sc.LocalPeer().Equal(initID))
	require.True(t, respOut.sc.LocalPeer().Equal(respID))

	msg := []byte("hello over an authenticated, encrypted channel")
	go func() {
		_, werr := initOut.sc.Write(msg)
		require.NoError(t, werr)
	}()

	buf := make([]byte, len(msg))
	n, err := io.ReadFull(respOut.sc, buf)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, buf)
}

// TestHandshakeRejectsTamperedMessage is scenario S4 ("Noise tamper"):
// bit-flipping a handshake message must fail the AEAD integrity check,
// not silently proceed.
func TestHandshakeRejectsTamperedMessage(t *testing.T) {
	initKP := genKeyPair(t)
	respKP := genKeyPair(t)

	c1, c2 := net.Pipe()
	tc := &tamperingConn{Conn: c1}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := NewSession(ctx, c2, respKP, false)
		errCh <- err
	}()

	// The initiator's first read is the responder's message 2; its first
	// body byte is corrupted, so decrypting it must fail.
	_, err := NewSession(ctx, tc, initKP, true)
	require.Error(t, err)
	c1.Close()
	<-errCh
}

// tamperingConn flips every bit of the first byte after the 2-byte
// length prefix of the first frame it reads, simulating an on-path
// corruption of the message body.
type tamperingConn struct {
	net.Conn
	seen     int
	tampered bool
}

func (c *tamperingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if !c.tampered && c.seen+n > 2 {
		p[2-c.seen] ^= 0xFF
		c.tampered = true
	}
	c.seen += n
	return n, err
}
