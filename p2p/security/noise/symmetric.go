package noise

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const protocolName = "Noise_XX_25519_ChaChaPoly_SHA256"

// dhLen, hashLen are fixed by the pinned pattern: X25519 and SHA-256.
const (
	dhLen   = 32
	hashLen = 32
)

// keypair25519 is an ephemeral or static X25519 key pair.
type keypair25519 struct {
	priv [32]byte
	pub  [32]byte
}

func generateKeypair25519(rand func([]byte) (int, error)) (keypair25519, error) {
	var kp keypair25519
	if _, err := rand(kp.priv[:]); err != nil {
		return kp, err
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	copy(kp.pub[:], pub)
	return kp, nil
}

func dh(priv, pub [32]byte) ([]byte, error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, fmt.Errorf("noise: x25519: %w", err)
	}
	return out, nil
}

// cipherState holds a single-direction AEAD key and the implicit,
// monotonically incrementing 64-bit nonce of spec.md §4.3.
type cipherState struct {
	key   []byte // 32 bytes, nil if not yet keyed
	nonce uint64
}

func (c *cipherState) hasKey() bool { return c.key != nil }

func (c *cipherState) initializeKey(key []byte) {
	c.key = append([]byte(nil), key...)
	c.nonce = 0
}

func (c *cipherState) encryptWithAD(ad, plaintext []byte) ([]byte, error) {
	if !c.hasKey() {
		return append([]byte(nil), plaintext...), nil
	}
	if c.nonce == ^uint64(0) {
		return nil, ErrNonceOverflow
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}
	nonceBytes := encodeNonce(c.nonce)
	ct := aead.Seal(nil, nonceBytes[:], plaintext, ad)
	c.nonce++
	return ct, nil
}

func (c *cipherState) decryptWithAD(ad, ciphertext []byte) ([]byte, error) {
	if !c.hasKey() {
		return append([]byte(nil), ciphertext...), nil
	}
	if c.nonce == ^uint64(0) {
		return nil, ErrNonceOverflow
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}
	nonceBytes := encodeNonce(c.nonce)
	pt, err := aead.Open(nil, nonceBytes[:], ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	c.nonce++
	return pt, nil
}

// encodeNonce matches the Noise protocol's little-endian 64-bit nonce
// right-aligned in chacha20poly1305's 12-byte nonce, with the first 4
// bytes zero.
func encodeNonce(n uint64) [chacha20poly1305.NonceSize]byte {
	var out [chacha20poly1305.NonceSize]byte
	for i := 0; i < 8; i++ {
		out[4+i] = byte(n >> (8 * i))
	}
	return out
}

// symmetricState tracks the running chaining key and handshake hash
// across the three XX messages, per the standard Noise symmetric-state
// algorithm.
type symmetricState struct {
	cs cipherState
	ck [hashLen]byte
	h  [hashLen]byte
}

func newSymmetricState(prologue []byte) *symmetricState {
	s := &symmetricState{}
	// InitializeSymmetric: since len(protocolName) <= hashLen, h = protocolName padded with zeros.
	copy(s.h[:], protocolName)
	s.ck = s.h
	s.mixHash(prologue)
	return s
}

func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

func (s *symmetricState) mixKey(inputKeyMaterial []byte) {
	out1, out2 := hkdf2(s.ck[:], inputKeyMaterial)
	copy(s.ck[:], out1)
	var tempKey [32]byte
	copy(tempKey[:], out2[:32])
	s.cs.initializeKey(tempKey[:])
}

// mixKeyAndHash is used once at the end of the handshake, per the
// standard Noise Split() key-schedule: it is not needed for the XX
// pattern (no pre-shared key token), so it is omitted; split() below
// derives the two transport keys directly from the final chaining key.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	ct, err := s.cs.encryptWithAD(s.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ct)
	return ct, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	pt, err := s.cs.decryptWithAD(s.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ciphertext)
	return pt, nil
}

// split derives the two transport-phase cipher keys from the final
// chaining key, per Noise's Split(): HKDF(ck, empty) -> (k1, k2). The
// initiator sends with k1/receives with k2; the responder is mirrored.
func (s *symmetricState) split() (k1, k2 [32]byte) {
	out1, out2 := hkdf2(s.ck[:], nil)
	copy(k1[:], out1[:32])
	copy(k2[:], out2[:32])
	return
}

// hkdf2 implements the Noise protocol's two-output HKDF: temp_key =
// HMAC-HASH(chaining_key, input_key_material); output1 =
// HMAC-HASH(temp_key, 0x01); output2 = HMAC-HASH(temp_key, output1 ||
// 0x02). This is exactly RFC 5869 HKDF-Extract(salt=ck, ikm) followed by
// HKDF-Expand with an empty info string, so golang.org/x/crypto/hkdf
// implements it directly.
func hkdf2(chainingKey, inputKeyMaterial []byte) (out1, out2 [32]byte) {
	r := hkdf.New(sha256.New, inputKeyMaterial, chainingKey, nil)
	if _, err := io.ReadFull(r, out1[:]); err != nil {
		panic("noise: hkdf read failed: " + err.Error()) // hkdf.Reader over sha256 cannot fail for 32-byte reads
	}
	if _, err := io.ReadFull(r, out2[:]); err != nil {
		panic("noise: hkdf read failed: " + err.Error())
	}
	return
}
