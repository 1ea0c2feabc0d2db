package upgrader

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/stretchr/testify/require"
)

// TestUpgradeFullPipeline exercises spec.md §4.6's full linear pipeline
// (no layer adaptors, Noise security, Yamux muxer) and is the
// unit-level analog of scenario S1 ("echo over Yamux+Noise+TCP").
func TestUpgradeFullPipeline(t *testing.T) {
	dialerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	listenerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)

	dialerID, err := peer.FromPublicKey(dialerKP.Pub)
	require.NoError(t, err)
	listenerID, err := peer.FromPublicKey(listenerKP.Pub)
	require.NoError(t, err)

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type out struct {
		res *Result
		err error
	}
	dialerCh := make(chan out, 1)
	listenerCh := make(chan out, 1)

	dialerUp := New(dialerKP)
	listenerUp := New(listenerKP)

	go func() {
		res, err := dialerUp.UpgradeOutbound(ctx, c1, nil)
		dialerCh <- out{res, err}
	}()
	go func() {
		res, err := listenerUp.UpgradeInbound(ctx, c2, nil)
		listenerCh <- out{res, err}
	}()

	dialerOut := <-dialerCh
	listenerOut := <-listenerCh
	require.NoError(t, dialerOut.err)
	require.NoError(t, listenerOut.err)

	require.True(t, dialerOut.res.RemotePeer.Equal(listenerID))
	require.True(t, listenerOut.res.RemotePeer.Equal(dialerID))

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		st, err := listenerOut.res.Session.AcceptStream()
		require.NoError(t, err)
		buf := make([]byte, 4)
		_, err = io.ReadFull(st, buf)
		require.NoError(t, err)
		require.Equal(t, "ping", string(buf))
		_, err = st.Write([]byte("pong"))
		require.NoError(t, err)
	}()

	cs, err := dialerOut.res.Session.OpenStream()
	require.NoError(t, err)
	_, err = cs.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(cs, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))

	<-serverDone
}
