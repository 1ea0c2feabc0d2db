// Package peer implements the KeyPair/PublicKey/PrivateKey model and the
// PeerId derivation rule of spec.md §3.
package peer

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

// KeyType tags which scheme a KeyPair uses. Values match the libp2p
// crypto.proto KeyType enum so that the protobuf wire form this package
// emits is bit-compatible with the ecosystem's.
type KeyType int32

const (
	RSA       KeyType = 0
	Ed25519   KeyType = 1
	Secp256k1 KeyType = 2
	ECDSA     KeyType = 3
)

func (t KeyType) String() string {
	switch t {
	case RSA:
		return "RSA"
	case Ed25519:
		return "Ed25519"
	case Secp256k1:
		return "Secp256k1"
	case ECDSA:
		return "ECDSA"
	default:
		return fmt.Sprintf("KeyType(%d)", t)
	}
}

// PublicKey is a tagged public key. Data holds the scheme-specific raw
// key bytes (Ed25519: 32-byte point; Secp256k1: 33-byte compressed
// point; ECDSA: DER SubjectPublicKeyInfo; RSA: DER SubjectPublicKeyInfo).
type PublicKey struct {
	Type KeyType
	Data []byte
}

// PrivateKey is the private-key counterpart of PublicKey.
type PrivateKey struct {
	Type KeyType
	Data []byte
}

// protobuf field numbers from libp2p's crypto.proto PublicKey/PrivateKey
// messages.
const (
	fieldType = 1
	fieldData = 2
)

// Marshal produces the canonical protobuf form: a two-field message of
// (Type: varint, Data: bytes).
func (k PublicKey) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Type))
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, k.Data)
	return b
}

// Marshal produces the canonical protobuf form for a private key.
func (k PrivateKey) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Type))
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, k.Data)
	return b
}

// UnmarshalPublicKey parses the canonical protobuf form of a PublicKey.
func UnmarshalPublicKey(b []byte) (PublicKey, error) {
	typ, data, err := unmarshalTagged(b)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{Type: KeyType(typ), Data: data}, nil
}

// UnmarshalPrivateKey parses the canonical protobuf form of a PrivateKey.
func UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	typ, data, err := unmarshalTagged(b)
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{Type: KeyType(typ), Data: data}, nil
}

func unmarshalTagged(b []byte) (typ int64, data []byte, err error) {
	var haveType, haveData bool
	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			typ = int64(v)
			haveType = true
			b = b[n:]
		case fieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			data = append([]byte(nil), v...)
			haveData = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, wt, b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if !haveType || !haveData {
		return 0, nil, errors.New("peer: key message missing Type or Data field")
	}
	return typ, data, nil
}

// KeyPair is a matched private/public pair.
type KeyPair struct {
	Priv PrivateKey
	Pub  PublicKey
}

// GenerateEd25519 generates a new Ed25519 KeyPair.
func GenerateEd25519() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Priv: PrivateKey{Type: Ed25519, Data: priv},
		Pub:  PublicKey{Type: Ed25519, Data: pub},
	}, nil
}

// GenerateSecp256k1 generates a new Secp256k1 KeyPair. The public key is
// stored in 33-byte compressed form.
func GenerateSecp256k1() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, err
	}
	pub := priv.PubKey()
	return KeyPair{
		Priv: PrivateKey{Type: Secp256k1, Data: priv.Serialize()},
		Pub:  PublicKey{Type: Secp256k1, Data: pub.SerializeCompressed()},
	}, nil
}

// GenerateECDSA generates a new ECDSA (P-256) KeyPair, DER-encoded per
// x509's PKCS8/SubjectPublicKeyInfo conventions.
func GenerateECDSA() (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, err
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Priv: PrivateKey{Type: ECDSA, Data: privBytes},
		Pub:  PublicKey{Type: ECDSA, Data: pubBytes},
	}, nil
}

// Sign produces a signature over msg using the private key's scheme.
func (k PrivateKey) Sign(msg []byte) ([]byte, error) {
	switch k.Type {
	case Ed25519:
		if len(k.Data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("peer: bad ed25519 private key size %d", len(k.Data))
		}
		return ed25519.Sign(ed25519.PrivateKey(k.Data), msg), nil
	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(k.Data)
		digest := sha256Sum(msg)
		sig := ecdsaSignSecp256k1(priv, digest)
		return sig, nil
	case ECDSA:
		priv, err := x509.ParsePKCS8PrivateKey(k.Data)
		if err != nil {
			return nil, err
		}
		ecPriv, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("peer: not an ECDSA private key")
		}
		digest := sha256Sum(msg)
		return ecdsa.SignASN1(rand.Reader, ecPriv, digest)
	default:
		return nil, fmt.Errorf("peer: signing not supported for %s", k.Type)
	}
}

// Verify checks a signature produced by Sign for the matching public key
// scheme.
func (k PublicKey) Verify(msg, sig []byte) error {
	switch k.Type {
	case Ed25519:
		if len(k.Data) != ed25519.PublicKeySize {
			return fmt.Errorf("peer: bad ed25519 public key size %d", len(k.Data))
		}
		if !ed25519.Verify(ed25519.PublicKey(k.Data), msg, sig) {
			return errors.New("peer: ed25519 signature verification failed")
		}
		return nil
	case Secp256k1:
		pub, err := secp256k1.ParsePubKey(k.Data)
		if err != nil {
			return err
		}
		digest := sha256Sum(msg)
		if !ecdsaVerifySecp256k1(pub, digest, sig) {
			return errors.New("peer: secp256k1 signature verification failed")
		}
		return nil
	case ECDSA:
		pub, err := x509.ParsePKIXPublicKey(k.Data)
		if err != nil {
			return err
		}
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("peer: not an ECDSA public key")
		}
		digest := sha256Sum(msg)
		if !ecdsa.VerifyASN1(ecPub, digest, sig) {
			return errors.New("peer: ecdsa signature verification failed")
		}
		return nil
	default:
		return fmt.Errorf("peer: verification not supported for %s", k.Type)
	}
}
