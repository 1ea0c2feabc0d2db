package network

import (
	"sync"
	"testing"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/stretchr/testify/require"
)

type countingNotifiee struct {
	mu        sync.Mutex
	connected int
	disc      int
}

func (c *countingNotifiee) Connected(peer.ID, *Conn)    { c.mu.Lock(); c.connected++; c.mu.Unlock() }
func (c *countingNotifiee) Disconnected(peer.ID, *Conn) { c.mu.Lock(); c.disc++; c.mu.Unlock() }

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	kp, err := peer.GenerateEd25519()
	require.NoError(t, err)
	id, err := peer.FromPublicKey(kp.Pub)
	require.NoError(t, err)
	return id
}

// TestBestForPrefersInitiator covers spec.md §8 property 10: best_for
// prefers an initiator-side connection over a responder-side one.
func TestBestForPrefersInitiator(t *testing.T) {
	reg := NewRegistry()
	p := testPeerID(t)

	responder := &Conn{Initiator: false}
	initiator := &Conn{Initiator: true}
	reg.Add(p, responder)
	reg.Add(p, initiator)

	best, ok := reg.BestFor(p)
	require.True(t, ok)
	require.Same(t, initiator, best)
}

// TestBestForMostRecent covers the tiebreak: among same-direction
// connections, the most recently added wins.
func TestBestForMostRecent(t *testing.T) {
	reg := NewRegistry()
	p := testPeerID(t)

	first := &Conn{Initiator: true}
	reg.Add(p, first)
	second := &Conn{Initiator: true}
	reg.Add(p, second)

	best, ok := reg.BestFor(p)
	require.True(t, ok)
	require.Same(t, second, best)
}

// TestOnConnectionClosedIdempotent ensures a connection is removed and
// Disconnected published exactly once even if OnConnectionClosed is
// called twice for the same Conn.
func TestOnConnectionClosedIdempotent(t *testing.T) {
	reg := NewRegistry()
	n := &countingNotifiee{}
	reg.Notify(n)
	p := testPeerID(t)

	c := &Conn{Initiator: true}
	reg.Add(p, c)
	require.Equal(t, 1, n.connected)

	reg.OnConnectionClosed(p, c)
	reg.OnConnectionClosed(p, c)
	require.Equal(t, 1, n.disc)

	_, ok := reg.BestFor(p)
	require.False(t, ok)
}
