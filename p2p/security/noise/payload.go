package noise

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// NoiseHandshakePayload carries the long-term identity key and a
// signature over the ephemeral static key, per spec.md §4.3.
type NoiseHandshakePayload struct {
	IdentityKey []byte // protobuf form of the peer's libp2p PublicKey
	IdentitySig []byte
	Data        []byte // optional extra data
}

const (
	payloadFieldIdentityKey = 1
	payloadFieldIdentitySig = 2
	payloadFieldData        = 3
)

// Marshal encodes the payload to its canonical protobuf form.
func (p NoiseHandshakePayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, payloadFieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentityKey)
	b = protowire.AppendTag(b, payloadFieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentitySig)
	if len(p.Data) > 0 {
		b = protowire.AppendTag(b, payloadFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Data)
	}
	return b
}

// UnmarshalNoiseHandshakePayload decodes the canonical protobuf form.
func UnmarshalNoiseHandshakePayload(b []byte) (NoiseHandshakePayload, error) {
	var p NoiseHandshakePayload
	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("%w: %v", ErrMarshalling, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case payloadFieldIdentityKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMarshalling, protowire.ParseError(n))
			}
			p.IdentityKey = append([]byte(nil), v...)
			b = b[n:]
		case payloadFieldIdentitySig:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMarshalling, protowire.ParseError(n))
			}
			p.IdentitySig = append([]byte(nil), v...)
			b = b[n:]
		case payloadFieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMarshalling, protowire.ParseError(n))
			}
			p.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, wt, b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMarshalling, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

// signedStaticKeyMessage is the exact byte string the identity key
// signs, per spec.md §4.3: "noise-libp2p-static-key:" || static_public_key.
func signedStaticKeyMessage(staticPub []byte) []byte {
	prefix := []byte("noise-libp2p-static-key:")
	out := make([]byte, 0, len(prefix)+len(staticPub))
	out = append(out, prefix...)
	out = append(out, staticPub...)
	return out
}
