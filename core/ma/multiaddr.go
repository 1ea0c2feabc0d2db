// Package ma implements Multiaddress: an ordered, self-describing,
// composable network address per spec.md §3/§4.1/§6.
package ma

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/kwilteam/kwil-p2p/core/varint"
	"github.com/mr-tron/base58"
)

// Component is one (protocol, value) pair of a Multiaddress.
type Component struct {
	Code  Code
	Value []byte // raw encoded value bytes; interpretation depends on Code
}

// Multiaddr is an ordered sequence of Components.
type Multiaddr struct {
	comps []Component
}

// Protocols returns the ordered protocol codes of m.
func (m Multiaddr) Protocols() []Code {
	out := make([]Code, len(m.comps))
	for i, c := range m.comps {
		out[i] = c.Code
	}
	return out
}

// Components returns a copy of m's components.
func (m Multiaddr) Components() []Component {
	out := make([]Component, len(m.comps))
	copy(out, m.comps)
	return out
}

// Empty reports whether m has no components.
func (m Multiaddr) Empty() bool { return len(m.comps) == 0 }

// ValueForProtocol returns the decoded textual value of the first
// component matching code, or an error if none is present.
func (m Multiaddr) ValueForProtocol(code Code) (string, error) {
	for _, c := range m.comps {
		if c.Code == code {
			return componentString(c)
		}
	}
	return "", fmt.Errorf("%w: protocol code %d not present", ErrNoSuchProtocol, int(code))
}

// PeerID extracts and decodes a trailing /p2p/... component, if present.
func (m Multiaddr) PeerID() (peer.ID, bool) {
	for _, c := range m.comps {
		if c.Code == P_P2P {
			id, err := peer.FromBytes(c.Value)
			if err != nil {
				return peer.ID{}, false
			}
			return id, true
		}
	}
	return peer.ID{}, false
}

// Encapsulate returns a new Multiaddr with other's components appended
// after m's.
func (m Multiaddr) Encapsulate(other Multiaddr) Multiaddr {
	out := make([]Component, 0, len(m.comps)+len(other.comps))
	out = append(out, m.comps...)
	out = append(out, other.comps...)
	return Multiaddr{comps: out}
}

// Equal reports whether two multiaddresses are identical in their
// canonical binary form.
func (m Multiaddr) Equal(o Multiaddr) bool {
	a, b := m.Bytes(), o.Bytes()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---- Binary encoding ----

// Bytes returns the canonical binary form: repeated
// (varint(code) || value-bytes) with value-bytes prefixed by a varint
// length where the protocol's size is variable.
func (m Multiaddr) Bytes() []byte {
	var buf []byte
	for _, c := range m.comps {
		buf = varint.AppendUvarint(buf, uint64(c.Code))
		p, _ := byCode(c.Code)
		if p.Size < 0 {
			buf = varint.AppendUvarint(buf, uint64(len(c.Value)))
		}
		buf = append(buf, c.Value...)
	}
	return buf
}

// ParseBytes decodes the canonical binary form produced by Bytes.
func ParseBytes(b []byte) (Multiaddr, error) {
	if len(b) == 0 {
		return Multiaddr{}, ErrEmptyAddress
	}
	var comps []Component
	r := &sliceReader{b: b}
	for r.remaining() > 0 {
		codeVal, err := varint.ReadUvarint(r)
		if err != nil {
			return Multiaddr{}, fmt.Errorf("%w: reading protocol code: %v", ErrInvalidAddress, err)
		}
		code := Code(codeVal)
		p, err := byCode(code)
		if err != nil {
			return Multiaddr{}, fmt.Errorf("%w: %v", ErrNotImplemented, err)
		}

		var n int
		if p.Size >= 0 {
			n = p.Size
		} else {
			length, err := varint.ReadUvarint(r)
			if err != nil {
				return Multiaddr{}, fmt.Errorf("%w: reading value length: %v", ErrInvalidAddress, err)
			}
			n = int(length)
		}
		val, err := r.take(n)
		if err != nil {
			return Multiaddr{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		comps = append(comps, Component{Code: code, Value: val})
	}

	ma := Multiaddr{comps: comps}
	if err := validateGrammar(ma); err != nil {
		return Multiaddr{}, err
	}
	return ma, nil
}

type sliceReader struct {
	b   []byte
	off int
}

func (r *sliceReader) ReadByte() (byte, error) {
	if r.off >= len(r.b) {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *sliceReader) remaining() int { return len(r.b) - r.off }

func (r *sliceReader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.b) {
		return nil, fmt.Errorf("value of length %d exceeds remaining buffer", n)
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v, nil
}

// ---- String encoding ----

// String returns the canonical "/proto/value/..." text form.
func (m Multiaddr) String() string {
	var sb strings.Builder
	for _, c := range m.comps {
		p, _ := byCode(c.Code)
		sb.WriteByte('/')
		sb.WriteString(p.Name)
		s, err := componentString(c)
		if err == nil && s != "" {
			sb.WriteByte('/')
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func componentString(c Component) (string, error) {
	p, err := byCode(c.Code)
	if err != nil {
		return "", err
	}
	switch p.Kind {
	case KindNone:
		return "", nil
	case KindIPv4:
		return net.IP(c.Value).String(), nil
	case KindIPv6:
		return net.IP(c.Value).String(), nil
	case KindPort:
		return strconv.Itoa(int(binary.BigEndian.Uint16(c.Value))), nil
	case KindDNSLabel:
		return string(c.Value), nil
	case KindPeerID:
		return base58.Encode(c.Value), nil
	default:
		return "", fmt.Errorf("%w: kind %d", ErrNotImplemented, p.Kind)
	}
}

// Parse parses the textual "/proto/value/..." form into a Multiaddr,
// validating each segment against the protocol table and the
// grammatical ordering invariants of spec.md §3.
func Parse(s string) (Multiaddr, error) {
	if s == "" {
		return Multiaddr{}, ErrEmptyAddress
	}
	if !strings.HasPrefix(s, "/") {
		return Multiaddr{}, ErrNotBeginWithSlash
	}

	parts := strings.Split(s, "/")[1:] // drop leading empty segment before the first slash
	var comps []Component

	for i := 0; i < len(parts); {
		name := parts[i]
		if name == "" {
			return Multiaddr{}, ErrEmptyProtocol
		}
		p, err := byName(name)
		if err != nil {
			return Multiaddr{}, err
		}
		i++

		var value string
		hasValue := p.Kind != KindNone
		if hasValue {
			if i >= len(parts) {
				return Multiaddr{}, fmt.Errorf("%w: %s requires a value", ErrInvalidAddress, name)
			}
			value = parts[i]
			i++
		}

		comp, err := encodeComponent(p, value)
		if err != nil {
			return Multiaddr{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		comps = append(comps, comp)
	}

	ma := Multiaddr{comps: comps}
	if err := validateGrammar(ma); err != nil {
		return Multiaddr{}, err
	}
	return ma, nil
}

func encodeComponent(p Protocol, value string) (Component, error) {
	switch p.Kind {
	case KindNone:
		return Component{Code: p.Code}, nil
	case KindIPv4:
		ip := net.ParseIP(value).To4()
		if ip == nil {
			return Component{}, fmt.Errorf("invalid ipv4 address %q", value)
		}
		return Component{Code: p.Code, Value: ip}, nil
	case KindIPv6:
		ip := net.ParseIP(value).To16()
		if ip == nil {
			return Component{}, fmt.Errorf("invalid ipv6 address %q", value)
		}
		return Component{Code: p.Code, Value: ip}, nil
	case KindPort:
		port, err := strconv.Atoi(value)
		if err != nil || port < 0 || port > 65535 {
			return Component{}, fmt.Errorf("invalid port %q", value)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(port))
		return Component{Code: p.Code, Value: buf}, nil
	case KindDNSLabel:
		return Component{Code: p.Code, Value: []byte(value)}, nil
	case KindPeerID:
		id, err := peer.Decode(value)
		if err != nil {
			return Component{}, fmt.Errorf("invalid peer id %q: %w", value, err)
		}
		return Component{Code: p.Code, Value: id.Bytes()}, nil
	default:
		return Component{}, fmt.Errorf("%w: kind %d", ErrNotImplemented, p.Kind)
	}
}

// validateGrammar enforces: tcp/udp only after an ip4/ip6/dns* component
// earlier in the address, and p2p (if present) is terminal.
func validateGrammar(m Multiaddr) error {
	sawAddr := false
	for i, c := range m.comps {
		switch {
		case isAddrCode(c.Code):
			sawAddr = true
		case c.Code == P_TCP || c.Code == P_UDP:
			if !sawAddr {
				return fmt.Errorf("%w: %s must follow an ip4/ip6/dns* component", ErrInvalidAddress, nameOf(c.Code))
			}
		case c.Code == P_P2P:
			if i != len(m.comps)-1 {
				return fmt.Errorf("%w: /p2p/ must be the terminal component", ErrInvalidAddress)
			}
		}
	}
	return nil
}

func nameOf(c Code) string {
	p, err := byCode(c)
	if err != nil {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return p.Name
}

// NewP2PComponent builds a /p2p/<id> component from a peer ID.
func NewP2PComponent(id peer.ID) Component {
	return Component{Code: P_P2P, Value: id.Bytes()}
}
