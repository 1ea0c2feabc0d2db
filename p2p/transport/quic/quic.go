// Package quic provides a thin UDP-backed listener for /udp/.../quic
// multiaddresses. Full QUIC semantics (the handshake, stream
// multiplexing and 0-RTT the real protocol defines) are out of scope;
// this package only demonstrates that a /quic raw transport binds to
// the same Multiaddress grammar and RawConnection shape as tcp, per
// spec.md §4's note that QUIC is "a UDP-based variant" of C3. Dialing
// is not implemented: a real QUIC dial requires the handshake this
// package deliberately does not carry.
package quic

import (
	"errors"
	"fmt"
	"net"

	"github.com/kwilteam/kwil-p2p/core/ma"
)

// ErrDialNotSupported is returned by Dial: this package only exercises
// the listen/bind half of the UDP-backed transport.
var ErrDialNotSupported = errors.New("quic: dial not implemented")

// CanDial reports whether addr names a udp+quic transport. It never
// actually succeeds a dial (see ErrDialNotSupported) but is exposed so
// transport selection (spec.md §4.8 step 2) can recognize the protocol.
func CanDial(addr ma.Multiaddr) bool {
	_, err := hostPort(addr)
	return err == nil
}

// Dial always fails: see ErrDialNotSupported.
func Dial(addr ma.Multiaddr) (net.Conn, error) {
	if _, err := hostPort(addr); err != nil {
		return nil, err
	}
	return nil, ErrDialNotSupported
}

// Listener wraps a net.UDPConn bound to a single /udp/.../quic
// Multiaddress, exposing the datagrams received from each remote
// address as they arrive. It does not implement QUIC framing, stream
// multiplexing, or encryption.
type Listener struct {
	conn *net.UDPConn
	addr ma.Multiaddr
}

// Listen binds addr's UDP port.
func Listen(addr ma.Multiaddr) (*Listener, error) {
	hostport, err := hostPort(addr)
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("quic: resolving %s: %w", hostport, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("quic: listen %s: %w", hostport, err)
	}
	bound, err := boundMultiaddr(conn.LocalAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Listener{conn: conn, addr: bound}, nil
}

// Multiaddr returns the concrete bound listen address.
func (l *Listener) Multiaddr() ma.Multiaddr { return l.addr }

// ReadDatagram reads one inbound UDP datagram, returning its payload
// and originating address.
func (l *Listener) ReadDatagram(buf []byte) (n int, from *net.UDPAddr, err error) {
	return l.conn.ReadFromUDP(buf)
}

// Close releases the bound UDP socket.
func (l *Listener) Close() error { return l.conn.Close() }

func hostPort(addr ma.Multiaddr) (string, error) {
	protos := addr.Protocols()
	hasUDP, hasQUIC := false, false
	for _, c := range protos {
		switch c {
		case ma.P_UDP:
			hasUDP = true
		case ma.P_QUIC:
			hasQUIC = true
		}
	}
	if !hasUDP || !hasQUIC {
		return "", fmt.Errorf("quic: %s is not a /udp/.../quic address", addr)
	}
	host, err := addressValue(addr)
	if err != nil {
		return "", err
	}
	port, err := addr.ValueForProtocol(ma.P_UDP)
	if err != nil {
		return "", fmt.Errorf("quic: %s has no /udp component: %w", addr, err)
	}
	return net.JoinHostPort(host, port), nil
}

func addressValue(addr ma.Multiaddr) (string, error) {
	for _, code := range []ma.Code{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_DNSADDR} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			return v, nil
		}
	}
	return "", fmt.Errorf("quic: %s has no ip4/ip6/dns* component", addr)
}

func boundMultiaddr(a net.Addr) (ma.Multiaddr, error) {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok {
		return ma.Multiaddr{}, fmt.Errorf("quic: unexpected listener address type %T", a)
	}
	proto := "ip4"
	if udpAddr.IP.To4() == nil {
		proto = "ip6"
	}
	return ma.Parse(fmt.Sprintf("/%s/%s/udp/%d/quic", proto, udpAddr.IP.String(), udpAddr.Port))
}
