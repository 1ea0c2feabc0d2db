// Package network implements the ConnectionRegistry of spec.md §4.7: an
// index of live MuxedConnections by peer, best-connection selection,
// and idempotent, re-entrant-safe close.
package network

import (
	"sync"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/p2p/muxer/yamux"
)

// Conn is one registered MuxedConnection: a Yamux session plus the
// bookkeeping the registry needs for best-connection selection.
type Conn struct {
	Session   *yamux.Session
	Peer      peer.ID
	Initiator bool
	addedAt   time.Time
}

// Notifiee receives synchronous Connected/Disconnected callbacks, per
// spec.md §4.7: events are published before Add/CloseAll return.
type Notifiee interface {
	Connected(peer.ID, *Conn)
	Disconnected(peer.ID, *Conn)
}

// Registry maps PeerId to the set of its live MuxedConnections.
type Registry struct {
	mu        sync.Mutex
	byPeer    map[peer.ID][]*Conn
	closing   map[peer.ID]bool
	notifiees []Notifiee
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byPeer:  make(map[peer.ID][]*Conn),
		closing: make(map[peer.ID]bool),
	}
}

// Notify registers n to receive Connected/Disconnected events.
func (r *Registry) Notify(n Notifiee) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiees = append(r.notifiees, n)
}

// Add registers conn under peerID and publishes Connected, per spec.md
// §4.7: "adding a connection publishes Connected".
func (r *Registry) Add(peerID peer.ID, conn *Conn) {
	r.mu.Lock()
	conn.Peer = peerID
	conn.addedAt = time.Now()
	r.byPeer[peerID] = append(r.byPeer[peerID], conn)
	notifiees := append([]Notifiee(nil), r.notifiees...)
	r.mu.Unlock()

	for _, n := range notifiees {
		n.Connected(peerID, conn)
	}
}

// GetAll returns every live connection registered for peerID.
func (r *Registry) GetAll(peerID peer.ID) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Conn(nil), r.byPeer[peerID]...)
}

// BestFor selects the preferred connection to peerID: initiator-side
// over responder-side, then most-recently-added, per spec.md §4.7.
func (r *Registry) BestFor(peerID peer.ID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.byPeer[peerID]
	if len(conns) == 0 {
		return nil, false
	}
	best := conns[0]
	for _, c := range conns[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best, true
}

func better(a, b *Conn) bool {
	if a.Initiator != b.Initiator {
		return a.Initiator
	}
	return a.addedAt.After(b.addedAt)
}

// OnConnectionClosed removes conn from the registry and publishes
// Disconnected exactly once. It is idempotent and safe to call
// reentrantly from within CloseAll's own iteration over the same peer's
// connection set, per spec.md §4.7.
func (r *Registry) OnConnectionClosed(peerID peer.ID, conn *Conn) {
	r.mu.Lock()
	if r.closing[peerID] {
		// CloseAll already owns removing this peer's entries; avoid a
		// second concurrent mutation of the same slice.
		r.mu.Unlock()
		return
	}
	removed := r.removeLocked(peerID, conn)
	notifiees := append([]Notifiee(nil), r.notifiees...)
	r.mu.Unlock()

	if removed {
		for _, n := range notifiees {
			n.Disconnected(peerID, conn)
		}
	}
}

// removeLocked deletes conn from byPeer[peerID] if present, reporting
// whether it actually removed anything (so callers publish Disconnected
// at most once per connection).
func (r *Registry) removeLocked(peerID peer.ID, conn *Conn) bool {
	conns := r.byPeer[peerID]
	for i, c := range conns {
		if c == conn {
			r.byPeer[peerID] = append(conns[:i], conns[i+1:]...)
			if len(r.byPeer[peerID]) == 0 {
				delete(r.byPeer, peerID)
			}
			return true
		}
	}
	return false
}

// CloseAll closes every connection registered for peerID, publishing
// Disconnected for each. It guards against OnConnectionClosed
// re-entering and double-removing the peer's set while iterating.
func (r *Registry) CloseAll(peerID peer.ID) error {
	r.mu.Lock()
	if r.closing[peerID] {
		r.mu.Unlock()
		return nil
	}
	r.closing[peerID] = true
	conns := append([]*Conn(nil), r.byPeer[peerID]...)
	delete(r.byPeer, peerID)
	notifiees := append([]Notifiee(nil), r.notifiees...)
	r.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, n := range notifiees {
			n.Disconnected(peerID, c)
		}
	}

	r.mu.Lock()
	delete(r.closing, peerID)
	r.mu.Unlock()
	return firstErr
}
