package mh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip covers spec.md §8 property 1: for every (code, digest) in
// the supported set, parse(encode(h)) = h, and the encoded length matches
// the varint header.
func TestRoundTrip(t *testing.T) {
	for _, code := range []Code{Identity, SHA1, SHA256, SHA512} {
		h, err := Sum(code, []byte("the quick brown fox"))
		require.NoError(t, err)

		enc := h.Bytes()
		got, err := Parse(enc)
		require.NoError(t, err)
		require.True(t, h.Equal(got))
		require.Equal(t, code, got.Code())
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	h, err := Sum(SHA256, []byte("data"))
	require.NoError(t, err)
	enc := append(h.Bytes(), 0xff)
	_, err = Parse(enc)
	require.Error(t, err)
}

func TestParseRejectsShortBuffer(t *testing.T) {
	h, err := Sum(SHA256, []byte("data"))
	require.NoError(t, err)
	enc := h.Bytes()
	_, err = Parse(enc[:len(enc)-1])
	require.Error(t, err)
}

func TestUnsupportedCode(t *testing.T) {
	_, err := Sum(Code(0xff), []byte("x"))
	require.Error(t, err)
}
