package peer

import (
	"crypto/sha256"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func sha256Sum(msg []byte) []byte {
	sum := sha256.Sum256(msg)
	return sum[:]
}

func ecdsaSignSecp256k1(priv *secp256k1.PrivateKey, digest []byte) []byte {
	sig := secp256k1ecdsa.Sign(priv, digest)
	return sig.Serialize()
}

func ecdsaVerifySecp256k1(pub *secp256k1.PublicKey, digest, sig []byte) bool {
	parsed, err := secp256k1ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}
