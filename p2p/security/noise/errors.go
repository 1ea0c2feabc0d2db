// Package noise implements the Noise_XX_25519_ChaChaPoly_SHA256 secure
// channel handshake of spec.md §4.3: mutual authentication and AEAD
// encryption of an underlying byte stream (the Raw or layer-adapted
// connection produced by the upgrader pipeline, §4.6).
package noise

import "errors"

// Error kinds per spec.md §7 "Noise/Security".
var (
	ErrAuthentication   = errors.New("noise: authentication error")
	ErrHandshakeFailure = errors.New("noise: handshake failure")
	ErrMarshalling      = errors.New("noise: marshalling error")
	ErrUnsupportedKey   = errors.New("noise: unsupported key type")
	ErrFrameTooLarge    = errors.New("noise: frame exceeds 65535 bytes")
	ErrNonceOverflow    = errors.New("noise: nonce space exhausted, connection must be rekeyed")
)
