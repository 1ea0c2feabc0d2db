// Package tcp implements the C3 raw transport of spec.md §4 over TCP:
// dial, listen and close of a byte-stream connection addressed by a
// Multiaddress.
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/kwilteam/kwil-p2p/core/ma"
)

// CanDial reports whether addr names a transport this package can dial:
// an ip4/ip6 (or dns*) component followed by tcp.
func CanDial(addr ma.Multiaddr) bool {
	_, err := toNetwork(addr)
	return err == nil
}

// Dial opens a raw TCP connection to addr, honoring ctx's deadline and
// cancellation per spec.md §4.8's dialer timeout requirement.
func Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
	network, hostport, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, hostport)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", hostport, err)
	}
	return conn, nil
}

// Listener wraps a net.Listener bound to a single listen Multiaddress.
type Listener struct {
	net.Listener
	addr ma.Multiaddr
}

// Listen binds addr (an ip4/ip6 + tcp Multiaddress, port 0 allowed for
// an ephemeral port) and returns a Listener whose Multiaddr() reflects
// the concrete bound address.
func Listen(addr ma.Multiaddr) (*Listener, error) {
	network, hostport, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, hostport)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", hostport, err)
	}
	bound, err := boundMultiaddr(ln.Addr())
	if err != nil {
		ln.Close()
		return nil, err
	}
	return &Listener{Listener: ln, addr: bound}, nil
}

// Multiaddr returns the concrete bound listen address, with any
// requested ephemeral port (tcp/0) resolved to the one actually bound.
func (l *Listener) Multiaddr() ma.Multiaddr { return l.addr }

func splitAddr(addr ma.Multiaddr) (network, hostport string, err error) {
	net_, err := toNetwork(addr)
	if err != nil {
		return "", "", err
	}
	host, err := addressValue(addr)
	if err != nil {
		return "", "", err
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", "", fmt.Errorf("tcp: %s has no /tcp component: %w", addr, err)
	}
	return net_, net.JoinHostPort(host, port), nil
}

func addressValue(addr ma.Multiaddr) (string, error) {
	for _, code := range []ma.Code{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_DNSADDR} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			return v, nil
		}
	}
	return "", fmt.Errorf("tcp: %s has no ip4/ip6/dns* component", addr)
}

func toNetwork(addr ma.Multiaddr) (string, error) {
	protos := addr.Protocols()
	if len(protos) < 2 {
		return "", fmt.Errorf("tcp: %s is too short to be a tcp address", addr)
	}
	hasTCP := false
	isV6 := false
	for _, c := range protos {
		switch c {
		case ma.P_TCP:
			hasTCP = true
		case ma.P_IP6:
			isV6 = true
		}
	}
	if !hasTCP {
		return "", fmt.Errorf("tcp: %s has no /tcp component", addr)
	}
	if isV6 {
		return "tcp6", nil
	}
	return "tcp4", nil
}

func boundMultiaddr(a net.Addr) (ma.Multiaddr, error) {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return ma.Multiaddr{}, fmt.Errorf("tcp: unexpected listener address type %T", a)
	}
	proto := "ip4"
	if tcpAddr.IP.To4() == nil {
		proto = "ip6"
	}
	return ma.Parse(fmt.Sprintf("/%s/%s/tcp/%d", proto, tcpAddr.IP.String(), tcpAddr.Port))
}
