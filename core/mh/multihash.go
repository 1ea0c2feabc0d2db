// Package mh implements Multihash: a tagged digest of (algorithm code,
// digest length, digest bytes), per spec.md §3/§4.1/§6.
package mh

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/kwilteam/kwil-p2p/core/varint"
)

// Code identifies a hash algorithm by its multicodec value.
type Code uint64

// Codes used by the core, per spec.md §3.
const (
	Identity Code = 0x00
	SHA1     Code = 0x11
	SHA256   Code = 0x12
	SHA512   Code = 0x13
)

func (c Code) String() string {
	switch c {
	case Identity:
		return "identity"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha2-256"
	case SHA512:
		return "sha2-512"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint64(c))
	}
}

// Multihash is an immutable (code, digest) value.
type Multihash struct {
	code   Code
	digest []byte
}

// New constructs a Multihash from a digest already computed by the
// caller, validating nothing about the digest's length relative to the
// code's canonical hash size (the identity code in particular has no
// fixed size).
func New(code Code, digest []byte) Multihash {
	d := make([]byte, len(digest))
	copy(d, digest)
	return Multihash{code: code, digest: d}
}

// Sum computes the Multihash of data using the given algorithm code.
func Sum(code Code, data []byte) (Multihash, error) {
	var digest []byte
	switch code {
	case Identity:
		digest = data
	case SHA1:
		sum := sha1.Sum(data)
		digest = sum[:]
	case SHA256:
		sum := sha256.Sum256(data)
		digest = sum[:]
	case SHA512:
		sum := sha512.Sum512(data)
		digest = sum[:]
	default:
		return Multihash{}, fmt.Errorf("mh: unsupported code 0x%x", uint64(code))
	}
	return New(code, digest), nil
}

// Code returns the hash algorithm code.
func (m Multihash) Code() Code { return m.code }

// Digest returns the raw digest bytes. The caller must not mutate the
// returned slice.
func (m Multihash) Digest() []byte { return m.digest }

// Equal reports whether two multihashes are byte-identical.
func (m Multihash) Equal(o Multihash) bool {
	if m.code != o.code || len(m.digest) != len(o.digest) {
		return false
	}
	for i := range m.digest {
		if m.digest[i] != o.digest[i] {
			return false
		}
	}
	return true
}

// Bytes serializes m as varint(code) || varint(len(digest)) || digest.
func (m Multihash) Bytes() []byte {
	buf := varint.AppendUvarint(nil, uint64(m.code))
	buf = varint.AppendUvarint(buf, uint64(len(m.digest)))
	buf = append(buf, m.digest...)
	return buf
}

// Parse decodes a Multihash from its binary form. The size invariant
// (declared length equals the bytes that follow) is enforced: trailing
// bytes beyond the declared digest length are an error, as is a short
// buffer.
func Parse(b []byte) (Multihash, error) {
	r := &byteSliceReader{b: b}

	code, err := varint.ReadUvarint(r)
	if err != nil {
		return Multihash{}, fmt.Errorf("mh: reading code: %w", err)
	}
	length, err := varint.ReadUvarint(r)
	if err != nil {
		return Multihash{}, fmt.Errorf("mh: reading length: %w", err)
	}
	rest := b[r.off:]
	if uint64(len(rest)) < length {
		return Multihash{}, fmt.Errorf("mh: declared length %d exceeds remaining %d bytes", length, len(rest))
	}
	if uint64(len(rest)) != length {
		return Multihash{}, fmt.Errorf("mh: %d trailing bytes after declared digest", uint64(len(rest))-length)
	}
	return New(Code(code), rest), nil
}

// byteSliceReader is a minimal io.ByteReader over a byte slice, used so
// ReadUvarint can share the streaming state machine without pulling in
// bytes.Reader's wider surface.
type byteSliceReader struct {
	b   []byte
	off int
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.off >= len(r.b) {
		return 0, fmt.Errorf("mh: unexpected end of buffer")
	}
	b := r.b[r.off]
	r.off++
	return b, nil
}
