// Package upgrader drives the linear conversion pipeline of spec.md
// §4.6: Raw -> [layer adaptors] -> Secure (Noise) -> Muxed (Yamux).
package upgrader

import (
	"context"
	"fmt"
	"net"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/p2p/muxer/yamux"
	"github.com/kwilteam/kwil-p2p/p2p/protocol/multistream"
	"github.com/kwilteam/kwil-p2p/p2p/security/noise"
)

// SecurityProtocolID and MuxerProtocolID are the multistream-select
// names this module negotiates for Noise and Yamux respectively.
const (
	SecurityProtocolID = "/noise"
	MuxerProtocolID    = "/yamux/1.0.0"
)

// LayerAdaptor wraps a raw byte connection with another transport layer
// (e.g. TLS, WebSocket) before security/muxer negotiation runs, per the
// multiaddress-driven ordering of spec.md §4.6. The core ships no
// adaptors (WebSocket/WSS are explicitly out of scope), but the
// pipeline accommodates them so an embedder can register its own.
type LayerAdaptor interface {
	Name() string
	WrapOutbound(ctx context.Context, conn net.Conn) (net.Conn, error)
	WrapInbound(ctx context.Context, conn net.Conn) (net.Conn, error)
}

// Result is the product of a successful upgrade: a multiplexed
// connection plus the authenticated peer identity of the far side.
type Result struct {
	Session    *yamux.Session
	RemotePeer peer.ID
	RemoteKey  peer.PublicKey
}

// Upgrader runs the security handshake and multiplexer setup for both
// dial and accept paths, per spec.md §4.6.
type Upgrader struct {
	Local peer.KeyPair
}

// New constructs an Upgrader authenticating as local.
func New(local peer.KeyPair) *Upgrader {
	return &Upgrader{Local: local}
}

// UpgradeOutbound runs layers (in order), negotiates and performs the
// Noise handshake as initiator, then negotiates and opens a Yamux
// session as initiator. Failure at any stage closes raw and returns a
// single error, per spec.md §4.6 ("on failure the underlying raw
// connection is closed and a single error propagates").
func (u *Upgrader) UpgradeOutbound(ctx context.Context, raw net.Conn, layers []LayerAdaptor) (*Result, error) {
	conn := raw
	for _, l := range layers {
		wrapped, err := l.WrapOutbound(ctx, conn)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("upgrader: layer %s: %w", l.Name(), err)
		}
		conn = wrapped
	}

	_, secConnIn, err := multistream.SelectOneOf(conn, []string{SecurityProtocolID})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: negotiating security: %w", err)
	}
	secConn, err := noise.NewSession(ctx, secConnIn, u.Local, true)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: noise handshake: %w", err)
	}

	_, muxConnIn, err := multistream.SelectOneOf(secConn, []string{MuxerProtocolID})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: negotiating muxer: %w", err)
	}

	sess := yamux.NewSession(muxConnIn, true)
	return &Result{Session: sess, RemotePeer: secConn.RemotePeer(), RemoteKey: secConn.RemotePublicKey()}, nil
}

// UpgradeInbound mirrors UpgradeOutbound for an accepted raw connection.
func (u *Upgrader) UpgradeInbound(ctx context.Context, raw net.Conn, layers []LayerAdaptor) (*Result, error) {
	conn := raw
	for _, l := range layers {
		wrapped, err := l.WrapInbound(ctx, conn)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("upgrader: layer %s: %w", l.Name(), err)
		}
		conn = wrapped
	}

	_, secConnIn, err := multistream.ListenOneOf(conn, []string{SecurityProtocolID})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: negotiating security: %w", err)
	}
	secConn, err := noise.NewSession(ctx, secConnIn, u.Local, false)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: noise handshake: %w", err)
	}

	_, muxConnIn, err := multistream.ListenOneOf(secConn, []string{MuxerProtocolID})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: negotiating muxer: %w", err)
	}

	sess := yamux.NewSession(muxConnIn, false)
	return &Result{Session: sess, RemotePeer: secConn.RemotePeer(), RemoteKey: secConn.RemotePublicKey()}, nil
}
