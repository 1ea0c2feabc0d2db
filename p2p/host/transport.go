package host

import (
	"context"
	"net"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/p2p/transport/quic"
	"github.com/kwilteam/kwil-p2p/p2p/transport/tcp"
)

// Transport is the C3 raw-transport capability the dialer selects by
// multiaddress, per spec.md §4.8 step 2 ("select the first compatible
// transport").
type Transport interface {
	CanDial(addr ma.Multiaddr) bool
	Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error)
}

type tcpTransport struct{}

func (tcpTransport) CanDial(addr ma.Multiaddr) bool { return tcp.CanDial(addr) }
func (tcpTransport) Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
	return tcp.Dial(ctx, addr)
}

// quicTransport recognizes /quic addresses for transport selection but
// never succeeds a dial: see p2p/transport/quic's package doc.
type quicTransport struct{}

func (quicTransport) CanDial(addr ma.Multiaddr) bool { return quic.CanDial(addr) }
func (quicTransport) Dial(_ context.Context, addr ma.Multiaddr) (net.Conn, error) {
	return quic.Dial(addr)
}

// DefaultTransports returns the transports wired in by default: TCP
// then the UDP-backed QUIC stub.
func DefaultTransports() []Transport {
	return []Transport{tcpTransport{}, quicTransport{}}
}
