package ma

import "fmt"

// Code is a multiaddr protocol code (the multicodec table entry).
type Code int

// Protocol codes recognized by the core, matching the canonical
// multiaddr/multicodec table values so that binary forms produced here
// are bit-compatible with the wider ecosystem.
const (
	P_IP4     Code = 4
	P_TCP     Code = 6
	P_DNS     Code = 53
	P_DNS4    Code = 54
	P_DNS6    Code = 55
	P_DNSADDR Code = 56
	P_UDP     Code = 273
	P_QUIC    Code = 460
	P_TLS     Code = 448
	P_WS      Code = 477
	P_WSS     Code = 478
	P_P2P     Code = 421
	P_IP6     Code = 41
)

// ValueKind classifies how a protocol's value is encoded/parsed.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindIPv4
	KindIPv6
	KindPort
	KindDNSLabel
	KindPeerID
)

// Protocol describes one entry of the static protocol table driving both
// the string-form and binary-form (de)serializers (spec.md §4.1).
type Protocol struct {
	Code Code
	Name string
	Kind ValueKind
	// Size is the fixed encoded value size in bytes, or -1 if the value
	// is itself length-prefixed (strings, peer ids).
	Size int
}

var protocolsByName = map[string]Protocol{}
var protocolsByCode = map[Code]Protocol{}

func register(p Protocol) {
	protocolsByName[p.Name] = p
	protocolsByCode[p.Code] = p
}

func init() {
	register(Protocol{Code: P_IP4, Name: "ip4", Kind: KindIPv4, Size: 4})
	register(Protocol{Code: P_IP6, Name: "ip6", Kind: KindIPv6, Size: 16})
	register(Protocol{Code: P_TCP, Name: "tcp", Kind: KindPort, Size: 2})
	register(Protocol{Code: P_UDP, Name: "udp", Kind: KindPort, Size: 2})
	register(Protocol{Code: P_DNS, Name: "dns", Kind: KindDNSLabel, Size: -1})
	register(Protocol{Code: P_DNS4, Name: "dns4", Kind: KindDNSLabel, Size: -1})
	register(Protocol{Code: P_DNS6, Name: "dns6", Kind: KindDNSLabel, Size: -1})
	register(Protocol{Code: P_DNSADDR, Name: "dnsaddr", Kind: KindDNSLabel, Size: -1})
	register(Protocol{Code: P_QUIC, Name: "quic", Kind: KindNone, Size: 0})
	register(Protocol{Code: P_TLS, Name: "tls", Kind: KindNone, Size: 0})
	register(Protocol{Code: P_WS, Name: "ws", Kind: KindNone, Size: 0})
	register(Protocol{Code: P_WSS, Name: "wss", Kind: KindNone, Size: 0})
	register(Protocol{Code: P_P2P, Name: "p2p", Kind: KindPeerID, Size: -1})
	// "ipfs" is a textual alias for "p2p"; both decode to P_P2P. We keep a
	// second name entry but it must not collide in protocolsByCode (it's
	// already registered).
	protocolsByName["ipfs"] = protocolsByName["p2p"]
}

func byName(name string) (Protocol, error) {
	p, ok := protocolsByName[name]
	if !ok {
		return Protocol{}, fmt.Errorf("%w: %q", ErrNoSuchProtocol, name)
	}
	return p, nil
}

func byCode(code Code) (Protocol, error) {
	p, ok := protocolsByCode[code]
	if !ok {
		return Protocol{}, fmt.Errorf("%w: code %d", ErrNoSuchProtocol, int(code))
	}
	return p, nil
}

// transportPrereqs lists, for a protocol that must be grammatically
// preceded by a transport-base address, which codes are acceptable
// immediate predecessors anywhere earlier in the address. This encodes
// the "tcp only after ip4/ip6/dns*" invariant of spec.md §3.
var transportPrereqs = map[Code][]Code{
	P_TCP: {P_IP4, P_IP6, P_DNS, P_DNS4, P_DNS6, P_DNSADDR},
	P_UDP: {P_IP4, P_IP6, P_DNS, P_DNS4, P_DNS6, P_DNSADDR},
}

func isAddrCode(c Code) bool {
	switch c {
	case P_IP4, P_IP6, P_DNS, P_DNS4, P_DNS6, P_DNSADDR:
		return true
	default:
		return false
	}
}
