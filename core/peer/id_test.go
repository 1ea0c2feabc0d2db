package peer

import (
	"testing"

	"github.com/kwilteam/kwil-p2p/core/mh"
	"github.com/stretchr/testify/require"
)

// TestPeerIDDerivation covers spec.md §8 property 3: derivation uses the
// identity multihash code when the key's protobuf form is small enough,
// and the string round-trips through base58.
func TestPeerIDDerivation(t *testing.T) {
	kp, err := GenerateEd25519()
	require.NoError(t, err)

	id, err := FromPublicKey(kp.Pub)
	require.NoError(t, err)

	require.LessOrEqual(t, len(kp.Pub.Marshal()), maxInlineKeyLen,
		"ed25519 pubkey protobuf form should be small enough to inline")

	roundTripped, err := Decode(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(roundTripped))
	require.True(t, id.MatchesPublicKey(kp.Pub))
}

func TestPeerIDSecp256k1Inline(t *testing.T) {
	kp, err := GenerateSecp256k1()
	require.NoError(t, err)

	id, err := FromPublicKey(kp.Pub)
	require.NoError(t, err)
	require.Equal(t, mh.Identity, id.mh.Code())

	roundTripped, err := Decode(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(roundTripped))
}

func TestPeerIDECDSAHashed(t *testing.T) {
	kp, err := GenerateECDSA()
	require.NoError(t, err)

	// DER SubjectPublicKeyInfo for P-256 is well over 42 bytes, so this
	// must use the sha256 hashed form, not identity.
	require.Greater(t, len(kp.Pub.Marshal()), maxInlineKeyLen)

	id, err := FromPublicKey(kp.Pub)
	require.NoError(t, err)
	require.Equal(t, mh.SHA256, id.mh.Code())

	roundTripped, err := Decode(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(roundTripped))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, gen := range []func() (KeyPair, error){GenerateEd25519, GenerateSecp256k1, GenerateECDSA} {
		kp, err := gen()
		require.NoError(t, err)

		msg := []byte("noise-libp2p-static-key:deadbeef")
		sig, err := kp.Priv.Sign(msg)
		require.NoError(t, err)
		require.NoError(t, kp.Pub.Verify(msg, sig))

		require.Error(t, kp.Pub.Verify([]byte("tampered"), sig))
	}
}

func TestKeyMarshalUnmarshal(t *testing.T) {
	kp, err := GenerateEd25519()
	require.NoError(t, err)

	b := kp.Pub.Marshal()
	got, err := UnmarshalPublicKey(b)
	require.NoError(t, err)
	require.Equal(t, kp.Pub, got)
}
