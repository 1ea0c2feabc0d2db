package host

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/internal/log"
	"github.com/stretchr/testify/require"
)

const echoProtocol = "/kwil/ping/1.0.0"

func echoHandler(stream net.Conn, _ string) {
	defer stream.Close()
	io.Copy(stream, stream)
}

// TestDialStreamEcho exercises spec.md §8 scenario S1: dial, full
// Noise+Yamux upgrade over TCP, multistream-select, and an
// application-level echo round trip.
func TestDialStreamEcho(t *testing.T) {
	listenerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	listener, err := New(listenerKP)
	require.NoError(t, err)
	listener.Router.Handle(echoProtocol, echoHandler)

	listenAddr, err := ma.Parse("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	bound, err := listener.Listener.Listen(listenAddr)
	require.NoError(t, err)
	defer listener.Listener.Close()

	dialerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	dialer, err := New(dialerKP)
	require.NoError(t, err)

	listenerID := listener.ID
	dialer.AddrBook.Add(listenerID, bound)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, proto, err := dialer.Dialer.NewStream(ctx, listenerID, []string{echoProtocol})
	require.NoError(t, err)
	require.Equal(t, echoProtocol, proto)
	defer stream.Close()

	_, err = stream.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

// TestDialTimeout exercises spec.md §8 scenario S5: dialing an
// unreachable host with a short deadline surfaces an error and leaves
// the registry untouched.
func TestDialTimeout(t *testing.T) {
	dialerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	dialer, err := New(dialerKP)
	require.NoError(t, err)

	unreachable, err := peer.GenerateEd25519()
	require.NoError(t, err)
	unreachableID, err := peer.FromPublicKey(unreachable.Pub)
	require.NoError(t, err)

	addr, err := ma.Parse("/ip4/203.0.113.1/tcp/1")
	require.NoError(t, err)
	dialer.AddrBook.Add(unreachableID, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err = dialer.Dialer.NewStream(ctx, unreachableID, []string{echoProtocol})
	require.Error(t, err)

	_, ok := dialer.Registry.BestFor(unreachableID)
	require.False(t, ok)
}

// TestServeStreamDispatchesPredicateHandler covers spec.md §4.8's
// router precedence end-to-end: a handler registered only via
// HandlePredicate (no exact-name registration) must still be reachable
// through the live accept path, not just Router.Lookup unit tests.
func TestServeStreamDispatchesPredicateHandler(t *testing.T) {
	listenerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	listener, err := New(listenerKP)
	require.NoError(t, err)
	listener.Router.HandlePredicate(
		func(p string) bool { return strings.HasPrefix(p, "/kwil/") },
		echoHandler,
	)

	listenAddr, err := ma.Parse("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	bound, err := listener.Listener.Listen(listenAddr)
	require.NoError(t, err)
	defer listener.Listener.Close()

	dialerKP, err := peer.GenerateEd25519()
	require.NoError(t, err)
	dialer, err := New(dialerKP)
	require.NoError(t, err)

	listenerID := listener.ID
	dialer.AddrBook.Add(listenerID, bound)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const predicateOnlyProtocol = "/kwil/ping/9.9.9"
	stream, proto, err := dialer.Dialer.NewStream(ctx, listenerID, []string{predicateOnlyProtocol})
	require.NoError(t, err)
	require.Equal(t, predicateOnlyProtocol, proto)
	defer stream.Close()

	_, err = stream.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

// TestPeerManRequiresProtocols covers PeerMan's post-connect protocol
// check (node/peers/peers.go's RequirePeerProtos): a peer that supports
// a configured required protocol raises no warning; one that doesn't
// does, mirroring the teacher's logged-not-disconnected behavior.
func TestPeerManRequiresProtocols(t *testing.T) {
	newPair := func(t *testing.T, required []string) (*Host, *Host, *bytes.Buffer) {
		var logBuf bytes.Buffer
		logger := log.New(log.WithWriter(&logBuf), log.WithFormat(log.FormatJSON))

		serverKP, err := peer.GenerateEd25519()
		require.NoError(t, err)
		server, err := New(serverKP)
		require.NoError(t, err)
		server.Router.Handle(echoProtocol, echoHandler)

		listenAddr, err := ma.Parse("/ip4/127.0.0.1/tcp/0")
		require.NoError(t, err)
		bound, err := server.Listener.Listen(listenAddr)
		require.NoError(t, err)
		t.Cleanup(func() { server.Listener.Close() })

		clientKP, err := peer.GenerateEd25519()
		require.NoError(t, err)
		client, err := New(clientKP, WithLogger(logger), WithRequiredProtocols(required...))
		require.NoError(t, err)
		client.AddrBook.Add(server.ID, bound)

		return client, server, &logBuf
	}

	t.Run("supported protocol logs no warning", func(t *testing.T) {
		client, server, logBuf := newPair(t, []string{echoProtocol})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, client.Dialer.Connect(ctx, server.ID))

		client.PeerMan.Connected(server.ID, nil)
		client.PeerMan.wg.Wait()
		require.NotContains(t, logBuf.String(), "does not support required protocol")
	})

	t.Run("unsupported protocol is logged", func(t *testing.T) {
		client, server, logBuf := newPair(t, []string{"/kwil/unsupported/1.0.0"})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, client.Dialer.Connect(ctx, server.ID))

		client.PeerMan.Connected(server.ID, nil)
		client.PeerMan.wg.Wait()
		require.Contains(t, logBuf.String(), "does not support required protocol")
	})
}
