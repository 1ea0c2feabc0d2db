package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/internal/log"
	"github.com/kwilteam/kwil-p2p/p2p/muxer/yamux"
	"github.com/kwilteam/kwil-p2p/p2p/network"
	"github.com/kwilteam/kwil-p2p/p2p/protocol/multistream"
	"github.com/kwilteam/kwil-p2p/p2p/upgrader"
)

// dialResult is what an in-flight dial resolves to; every caller
// joined to the same attempt receives the same values.
type dialResult struct {
	sess *yamux.Session
	err  error
}

// Dialer implements new_stream(peer, protocols) of spec.md §4.8: reuse
// a registered connection, else dial with per-peer in-flight dedup, run
// the upgrader, register, open a stream and negotiate its protocol.
type Dialer struct {
	local      peer.KeyPair
	up         *upgrader.Upgrader
	registry   *network.Registry
	transports []Transport
	addrBook   *AddrBook
	log        log.Logger

	mu       sync.Mutex
	inFlight map[peer.ID]chan dialResult
}

// NewDialer constructs a Dialer over the given registry and address
// book, dialing with transports (DefaultTransports if nil).
func NewDialer(local peer.KeyPair, registry *network.Registry, addrBook *AddrBook, transports []Transport, logger log.Logger) *Dialer {
	if transports == nil {
		transports = DefaultTransports()
	}
	return &Dialer{
		local:      local,
		up:         upgrader.New(local),
		registry:   registry,
		transports: transports,
		addrBook:   addrBook,
		log:        logger,
		inFlight:   make(map[peer.ID]chan dialResult),
	}
}

// NewStream implements spec.md §4.8's new_stream algorithm. ctx's
// deadline bounds the entire sequence; exceeding it surfaces
// ErrTimeout, matching context.DeadlineExceeded.
func (d *Dialer) NewStream(ctx context.Context, peerID peer.ID, protocols []string) (net.Conn, string, error) {
	sess, err := d.connection(ctx, peerID)
	if err != nil {
		return nil, "", err
	}

	stream, err := sess.OpenStream()
	if err != nil {
		return nil, "", fmt.Errorf("host: opening stream to %s: %w", peerID, err)
	}

	if dl, ok := ctx.Deadline(); ok {
		stream.SetDeadline(dl)
	}
	proto, negotiated, err := multistream.SelectOneOf(stream, protocols)
	if err != nil {
		stream.Close()
		if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, "", fmt.Errorf("host: negotiating protocol with %s: %w", peerID, err)
	}
	negotiated.SetDeadline(time.Time{})
	return negotiated, proto, nil
}

// Connect ensures a muxed connection to peerID exists, dialing if
// necessary, without opening an application stream. Used by PeerMan's
// connection-maintenance loop, which only needs the peer registered.
func (d *Dialer) Connect(ctx context.Context, peerID peer.ID) error {
	_, err := d.connection(ctx, peerID)
	return err
}

// connection returns a muxed session to peerID, reusing a registered
// connection or joining/starting an in-flight dial.
func (d *Dialer) connection(ctx context.Context, peerID peer.ID) (*yamux.Session, error) {
	if best, ok := d.registry.BestFor(peerID); ok {
		return best.Session, nil
	}

	d.mu.Lock()
	ch, inFlight := d.inFlight[peerID]
	if !inFlight {
		ch = make(chan dialResult, 1)
		d.inFlight[peerID] = ch
		d.mu.Unlock()
		go d.dial(peerID, ch)
	} else {
		d.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case res := <-ch:
		// Re-send for any other waiter still blocked on the same channel.
		ch <- res
		if res.err != nil {
			return nil, res.err
		}
		return res.sess, nil
	}
}

// dial performs the actual transport dial, upgrade and registration
// for peerID and publishes the outcome to every joined waiter.
func (d *Dialer) dial(peerID peer.ID, done chan dialResult) {
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, peerID)
		d.mu.Unlock()
	}()

	addrs := d.addrBook.Addrs(peerID)
	if len(addrs) == 0 {
		done <- dialResult{err: fmt.Errorf("%w: %s", ErrNoAddrs, peerID)}
		return
	}

	var lastErr error
	for _, addr := range addrs {
		var t Transport
		for _, candidate := range d.transports {
			if candidate.CanDial(addr) {
				t = candidate
				break
			}
		}
		if t == nil {
			lastErr = fmt.Errorf("%w: %s", ErrNoTransport, addr)
			continue
		}

		raw, err := t.Dial(context.Background(), addr)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnreachable, err)
			d.log.Warnf("dial %s via %s failed: %v", peerID, addr, err)
			continue
		}

		res, err := d.up.UpgradeOutbound(context.Background(), raw, nil)
		if err != nil {
			lastErr = err
			d.log.Warnf("upgrade to %s via %s failed: %v", peerID, addr, err)
			continue
		}
		if !res.RemotePeer.Equal(peerID) {
			res.Session.Close()
			lastErr = fmt.Errorf("host: %s presented unexpected identity %s", addr, res.RemotePeer)
			continue
		}

		d.registry.Add(peerID, &network.Conn{Session: res.Session, Initiator: true})
		done <- dialResult{sess: res.Session}
		return
	}

	if lastErr == nil {
		lastErr = ErrNoTransport
	}
	done <- dialResult{err: lastErr}
}
