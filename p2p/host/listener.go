package host

import (
	"context"
	"net"
	"sync"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/internal/log"
	"github.com/kwilteam/kwil-p2p/p2p/network"
	"github.com/kwilteam/kwil-p2p/p2p/protocol/multistream"
	"github.com/kwilteam/kwil-p2p/p2p/transport/tcp"
	"github.com/kwilteam/kwil-p2p/p2p/upgrader"
)

// rawListener is the subset of transport listeners Listener drives:
// accept raw connections and report the bound Multiaddress.
type rawListener interface {
	Accept() (net.Conn, error)
	Multiaddr() ma.Multiaddr
	Close() error
}

// Listener binds one or more listen-multiaddresses, accepts raw
// connections, upgrades them, registers the resulting MuxedConnection,
// and dispatches each inbound stream through the router, per spec.md
// §4.8.
type Listener struct {
	local    peer.KeyPair
	up       *upgrader.Upgrader
	registry *network.Registry
	router   *Router
	log      log.Logger

	mu        sync.Mutex
	listeners []rawListener
	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// NewListener constructs a Listener for the given registry and router.
func NewListener(local peer.KeyPair, registry *network.Registry, router *Router, logger log.Logger) *Listener {
	return &Listener{
		local:    local,
		up:       upgrader.New(local),
		registry: registry,
		router:   router,
		log:      logger,
		closed:   make(chan struct{}),
	}
}

// Listen binds addr (currently TCP addresses only) and starts its
// accept loop.
func (l *Listener) Listen(addr ma.Multiaddr) (ma.Multiaddr, error) {
	ln, err := tcp.Listen(addr)
	if err != nil {
		return ma.Multiaddr{}, err
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, ln)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.acceptLoop(ln)
	return ln.Multiaddr(), nil
}

func (l *Listener) acceptLoop(ln rawListener) {
	defer l.wg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
				l.log.Warnf("accept on %s failed: %v", ln.Multiaddr(), err)
				return
			}
		}
		l.wg.Add(1)
		go l.handleConn(raw)
	}
}

func (l *Listener) handleConn(raw net.Conn) {
	defer l.wg.Done()
	ctx := context.Background()
	res, err := l.up.UpgradeInbound(ctx, raw, nil)
	if err != nil {
		l.log.Warnf("inbound upgrade from %s failed: %v", raw.RemoteAddr(), err)
		return
	}
	l.registry.Add(res.RemotePeer, &network.Conn{Session: res.Session, Initiator: false})

	for {
		stream, err := res.Session.AcceptStream()
		if err != nil {
			return
		}
		l.wg.Add(1)
		go l.serveStream(stream)
	}
}

func (l *Listener) serveStream(stream net.Conn) {
	defer l.wg.Done()
	accept := func(offer string) bool {
		_, ok := l.router.Lookup(offer)
		return ok
	}
	proto, negotiated, err := multistream.ListenOneOfFunc(stream, accept, l.router.Protocols())
	if err != nil {
		stream.Close()
		return
	}
	handler, ok := l.router.Lookup(proto)
	if !ok {
		negotiated.Close()
		return
	}
	handler(negotiated, proto)
}

// Close stops every accept loop and closes the underlying listeners.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.mu.Lock()
		for _, ln := range l.listeners {
			if cerr := ln.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		l.mu.Unlock()
	})
	return err
}
