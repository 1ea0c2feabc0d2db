// PeerMan maintains a target connection count against the address book
// with reconnect-on-disconnect backoff, adapted from
// node/peers/peers.go's PeerMan (SPEC_FULL.md's peer-exchange-driven
// address book supplement). It is the concrete network.Notifiee that
// keeps the ConnectionRegistry populated under churn.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/internal/log"
	"github.com/kwilteam/kwil-p2p/p2p/network"
)

const (
	maxReconnectAttempts  = 500
	baseReconnectDelay    = 2 * time.Second
	maxReconnectDelay     = time.Minute
	disconnectForgetAfter = 7 * 24 * time.Hour
	minConnCheckFast      = time.Second
	minConnCheckSlow      = 20 * time.Second

	// protocolCheckDelay gives protocol negotiation a moment to settle
	// after Connected fires before requirePeerProtos dials a check
	// stream, mirroring node/peers/peers.go's Connected handler
	// (delayed post-connect RequirePeerProtos check, libp2p/go-libp2p#2643).
	protocolCheckDelay = 500 * time.Millisecond
)

// PeerMan maintains at least targetConns connections to known peers,
// reconnecting disconnected peers with exponential backoff, mirroring
// node/peers/peers.go's maintainMinPeers/reconnectWithRetry.
type PeerMan struct {
	log        log.Logger
	self       peer.ID
	dialer     *Dialer
	addrBook   *AddrBook
	registry   *network.Registry
	targetConn int
	protocols  []string

	mu          sync.Mutex
	disconnects map[peer.ID]time.Time
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewPeerMan constructs a PeerMan. protocols names any protocol a
// connection must negotiate a stream for to count as "required" (may
// be empty); self is excluded from dial candidates.
func NewPeerMan(self peer.ID, dialer *Dialer, addrBook *AddrBook, registry *network.Registry, targetConn int, protocols []string, logger log.Logger) *PeerMan {
	if targetConn < 1 {
		targetConn = 1
	}
	return &PeerMan{
		log:         logger,
		self:        self,
		dialer:      dialer,
		addrBook:    addrBook,
		registry:    registry,
		targetConn:  targetConn,
		protocols:   protocols,
		disconnects: make(map[peer.ID]time.Time),
		done:        make(chan struct{}),
	}
}

var _ network.Notifiee = (*PeerMan)(nil)

// Start launches the min-connection maintenance and stale-peer reaper
// loops, returning when ctx is cancelled.
func (pm *PeerMan) Start(ctx context.Context) {
	pm.wg.Add(2)
	go func() { defer pm.wg.Done(); pm.maintainMinConns(ctx) }()
	go func() { defer pm.wg.Done(); pm.reapOldDisconnects(ctx) }()

	<-ctx.Done()
	pm.closeOnce.Do(func() { close(pm.done) })
	pm.wg.Wait()
}

func (pm *PeerMan) maintainMinConns(ctx context.Context) {
	ticker := time.NewTicker(minConnCheckFast)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		candidates := pm.unconnectedCandidates()
		active := pm.activeCount()
		if active >= pm.targetConn {
			ticker.Reset(minConnCheckSlow)
			continue
		}
		if len(candidates) == 0 {
			if active == 0 {
				pm.log.Warnln("no connected peers and no known addresses to dial")
			}
			continue
		}

		var connected int
		for _, p := range candidates {
			dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := pm.connect(dctx, p)
			cancel()
			if err != nil {
				pm.log.Warnf("failed to connect to peer %s: %v", p, err)
				continue
			}
			connected++
		}
		if connected == 0 && active == 0 {
			ticker.Reset(minConnCheckFast)
		} else {
			ticker.Reset(minConnCheckSlow)
		}
	}
}

func (pm *PeerMan) connect(ctx context.Context, p peer.ID) error {
	return pm.dialer.Connect(ctx, p)
}

func (pm *PeerMan) unconnectedCandidates() []peer.ID {
	var out []peer.ID
	for _, p := range pm.addrBook.Peers() {
		if p.Equal(pm.self) {
			continue
		}
		if _, ok := pm.registry.BestFor(p); ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (pm *PeerMan) activeCount() int {
	var n int
	for _, p := range pm.addrBook.Peers() {
		if _, ok := pm.registry.BestFor(p); ok {
			n++
		}
	}
	return n
}

// Connected implements network.Notifiee: clears any pending-reconnect
// bookkeeping for a peer that is now connected, and, if protocols were
// configured, checks the peer supports them all.
func (pm *PeerMan) Connected(peerID peer.ID, _ *network.Conn) {
	pm.log.Infof("connected to peer %s", peerID)
	pm.mu.Lock()
	delete(pm.disconnects, peerID)
	pm.mu.Unlock()

	if len(pm.protocols) > 0 {
		pm.wg.Add(1)
		go func() {
			defer pm.wg.Done()
			pm.requirePeerProtos(peerID)
		}()
	}
}

// requirePeerProtos checks that peerID supports every protocol in
// pm.protocols, mirroring node/peers/peers.go's RequirePeerProtos. A
// short delay precedes the check since protocol negotiation can race
// connection establishment, particularly for inbound peers. Failure is
// logged, not disconnected, matching the teacher's handler.
func (pm *PeerMan) requirePeerProtos(peerID peer.ID) {
	select {
	case <-pm.done:
		return
	case <-time.After(protocolCheckDelay):
	}
	if _, ok := pm.registry.BestFor(peerID); !ok {
		return
	}

	for _, proto := range pm.protocols {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		stream, _, err := pm.dialer.NewStream(ctx, peerID, []string{proto})
		cancel()
		if err != nil {
			pm.log.Warnf("peer %s does not support required protocol %s: %v", peerID, proto, err)
			return
		}
		stream.Close()
	}
}

// Disconnected implements network.Notifiee: records the disconnect
// time and schedules a backoff reconnect loop, mirroring
// node/peers/peers.go's Disconnected handler.
func (pm *PeerMan) Disconnected(peerID peer.ID, _ *network.Conn) {
	pm.log.Infof("disconnected from peer %s", peerID)
	pm.mu.Lock()
	pm.disconnects[peerID] = time.Now()
	pm.mu.Unlock()

	select {
	case <-pm.done:
		return
	default:
	}

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		pm.reconnectWithBackoff(peerID)
	}()
}

func (pm *PeerMan) reconnectWithBackoff(peerID peer.ID) {
	delay := baseReconnectDelay
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-pm.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := pm.connect(ctx, peerID)
		cancel()
		if err == nil {
			pm.log.Infof("reconnected to peer %s", peerID)
			return
		}
		pm.log.Infof("reconnect attempt %d/%d to %s failed: %v", attempt+1, maxReconnectAttempts, peerID, err)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
	pm.log.Infof("giving up reconnecting to %s after %d attempts", peerID, maxReconnectAttempts)
}

func (pm *PeerMan) reapOldDisconnects(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		pm.mu.Lock()
		for peerID, at := range pm.disconnects {
			if now.Sub(at) > disconnectForgetAfter {
				delete(pm.disconnects, peerID)
				pm.addrBook.Remove(peerID)
			}
		}
		pm.mu.Unlock()
	}
}
