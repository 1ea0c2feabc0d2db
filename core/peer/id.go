package peer

import (
	"fmt"

	"github.com/kwilteam/kwil-p2p/core/mh"
	"github.com/mr-tron/base58"
)

// maxInlineKeyLen is the protobuf-serialized public key size at or below
// which the PeerId uses the "inline" identity-multihash form instead of
// hashing, per spec.md §3.
const maxInlineKeyLen = 42

// ID is a content-addressed peer identifier: a Multihash over a public
// key's canonical protobuf serialization.
type ID struct {
	mh mh.Multihash
}

// Empty reports whether this is the zero-value ID.
func (id ID) Empty() bool { return id.mh.Digest() == nil && id.mh.Code() == 0 }

// FromPublicKey derives a peer ID from a public key per the rule in
// spec.md §3: identity-multihash ("inline") when the key's protobuf form
// is small, sha256 multihash otherwise.
func FromPublicKey(pub PublicKey) (ID, error) {
	keyBytes := pub.Marshal()

	var code mh.Code
	switch pub.Type {
	case Ed25519, Secp256k1, ECDSA:
		if len(keyBytes) <= maxInlineKeyLen {
			code = mh.Identity
		} else {
			code = mh.SHA256
		}
	default:
		code = mh.SHA256
	}

	h, err := mh.Sum(code, keyBytes)
	if err != nil {
		return ID{}, fmt.Errorf("peer: deriving id: %w", err)
	}
	return ID{mh: h}, nil
}

// FromBytes wraps a raw multihash byte slice (e.g. parsed from a
// multiaddr's /p2p/ segment) as an ID, validating that it parses as a
// well-formed Multihash.
func FromBytes(b []byte) (ID, error) {
	h, err := mh.Parse(b)
	if err != nil {
		return ID{}, fmt.Errorf("peer: parsing id bytes: %w", err)
	}
	return ID{mh: h}, nil
}

// Bytes returns the raw multihash bytes of the ID.
func (id ID) Bytes() []byte { return id.mh.Bytes() }

// String returns the base58 text form of the ID.
func (id ID) String() string {
	return base58.Encode(id.mh.Bytes())
}

// Decode parses the base58 text form of a peer ID.
func Decode(s string) (ID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("peer: decoding base58 id: %w", err)
	}
	return FromBytes(b)
}

// Equal compares two IDs by byte-equality of their underlying multihash.
func (id ID) Equal(o ID) bool {
	return id.mh.Equal(o.mh)
}

// MatchesPublicKey reports whether id is the derived ID of pub, covering
// both the inline and hashed forms transparently (useful for verifying
// that a Noise handshake's claimed identity key is authoritative for the
// claimed remote peer ID).
func (id ID) MatchesPublicKey(pub PublicKey) bool {
	derived, err := FromPublicKey(pub)
	if err != nil {
		return false
	}
	return id.Equal(derived)
}
