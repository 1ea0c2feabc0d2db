// Package host wires the C9 Dialer, Listener and Router to a
// ConnectionRegistry and an address-book-backed PeerMan, constructed
// with functional options mirroring v2/node/node.go's
// NewNode(dir, opts ...Option) pattern.
package host

import (
	"context"
	"fmt"
	"net"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/internal/log"
	"github.com/kwilteam/kwil-p2p/p2p/network"
)

type options struct {
	logger            log.Logger
	addrBookPath      string
	targetConns       int
	transports        []Transport
	listenAddrs       []ma.Multiaddr
	bootstrapAddr     map[peer.ID][]ma.Multiaddr
	pex               bool
	requiredProtocols []string
}

// Option configures a Host, mirroring the teacher's node.Option shape.
type Option func(*options)

// WithLogger sets the Host's logger, otherwise log.DiscardLogger.
func WithLogger(l log.Logger) Option { return func(o *options) { o.logger = l } }

// WithAddrBook sets the JSON address-book file path.
func WithAddrBook(path string) Option { return func(o *options) { o.addrBookPath = path } }

// WithTargetConnections sets PeerMan's minimum-connections target.
func WithTargetConnections(n int) Option { return func(o *options) { o.targetConns = n } }

// WithTransports overrides the default transport set (TCP + the QUIC
// listen-only stub).
func WithTransports(t []Transport) Option { return func(o *options) { o.transports = t } }

// WithListenAddrs sets the multiaddresses the Host's Listener binds on
// Start.
func WithListenAddrs(addrs ...ma.Multiaddr) Option {
	return func(o *options) { o.listenAddrs = addrs }
}

// WithBootstrapPeer seeds the address book with a known peer before
// Start, so PeerMan's maintenance loop has an initial dial candidate.
func WithBootstrapPeer(id peer.ID, addrs ...ma.Multiaddr) Option {
	return func(o *options) {
		if o.bootstrapAddr == nil {
			o.bootstrapAddr = make(map[peer.ID][]ma.Multiaddr)
		}
		o.bootstrapAddr[id] = append(o.bootstrapAddr[id], addrs...)
	}
}

// WithPeerExchange enables PeerMan's connection-maintenance loop.
func WithPeerExchange(enabled bool) Option { return func(o *options) { o.pex = enabled } }

// WithRequiredProtocols sets the protocols PeerMan.Connected verifies a
// peer supports after connecting, mirroring node/peers/peers.go's
// requiredProtocols/RequirePeerProtos. Unsupported peers are logged,
// not disconnected.
func WithRequiredProtocols(protocols ...string) Option {
	return func(o *options) { o.requiredProtocols = protocols }
}

// Host is the top-level C9 assembly: identity, registry, router,
// dialer, listener and peer manager.
type Host struct {
	ID       peer.ID
	local    peer.KeyPair
	log      log.Logger
	Registry *network.Registry
	Router   *Router
	Dialer   *Dialer
	Listener *Listener
	AddrBook *AddrBook
	PeerMan  *PeerMan

	listenAddrs []ma.Multiaddr
	pex         bool
}

// New constructs a Host identified by local.
func New(local peer.KeyPair, opts ...Option) (*Host, error) {
	o := &options{logger: log.DiscardLogger, targetConns: 8}
	for _, opt := range opts {
		opt(o)
	}

	id, err := peer.FromPublicKey(local.Pub)
	if err != nil {
		return nil, fmt.Errorf("host: deriving local peer id: %w", err)
	}

	addrBook, err := NewAddrBook(o.addrBookPath)
	if err != nil {
		return nil, err
	}
	for bootID, addrs := range o.bootstrapAddr {
		for _, a := range addrs {
			addrBook.Add(bootID, a)
		}
	}

	registry := network.NewRegistry()
	router := NewRouter()
	dialer := NewDialer(local, registry, addrBook, o.transports, o.logger)
	listener := NewListener(local, registry, router, o.logger)
	pm := NewPeerMan(id, dialer, addrBook, registry, o.targetConns, o.requiredProtocols, o.logger)
	registry.Notify(pm)

	return &Host{
		ID:          id,
		local:       local,
		log:         o.logger,
		Registry:    registry,
		Router:      router,
		Dialer:      dialer,
		Listener:    listener,
		AddrBook:    addrBook,
		PeerMan:     pm,
		listenAddrs: o.listenAddrs,
		pex:         o.pex,
	}, nil
}

// Start binds every configured listen address and, if peer exchange is
// enabled, runs PeerMan's connection-maintenance loop until ctx is
// cancelled.
func (h *Host) Start(ctx context.Context) error {
	for _, addr := range h.listenAddrs {
		bound, err := h.Listener.Listen(addr)
		if err != nil {
			return fmt.Errorf("host: listening on %s: %w", addr, err)
		}
		h.log.Infof("listening on %s", bound)
	}

	if h.pex {
		h.PeerMan.Start(ctx)
	} else {
		<-ctx.Done()
	}
	return nil
}

// Close shuts down the listener and the registered connections of every
// peer in the address book. Connections to peers that are not in the
// address book are not closed.
func (h *Host) Close() error {
	var err error
	if h.Listener != nil {
		err = h.Listener.Close()
	}
	for _, id := range h.AddrBook.Peers() {
		h.Registry.CloseAll(id)
	}
	return err
}

// NewStream is a convenience wrapper over Dialer.NewStream using this
// Host's identity.
func (h *Host) NewStream(ctx context.Context, peerID peer.ID, protocols []string) (net.Conn, string, error) {
	return h.Dialer.NewStream(ctx, peerID, protocols)
}
