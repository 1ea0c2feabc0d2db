package ma

import (
	"testing"

	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip covers spec.md §8 property 2: for every syntactically
// valid multiaddress string s, to_string(parse_binary(to_binary(parse_string(s)))) == canonical(s).
func TestRoundTrip(t *testing.T) {
	cases := []string{
		"/ip4/127.0.0.1/tcp/8080",
		"/ip4/127.0.0.1/tcp/4001",
		"/ip6/::1/tcp/4001",
		"/dns4/example.com/tcp/443/tls/ws",
		"/dnsaddr/bootstrap.example.com",
	}
	for _, s := range cases {
		m1, err := Parse(s)
		require.NoError(t, err, s)

		bin := m1.Bytes()
		m2, err := ParseBytes(bin)
		require.NoError(t, err, s)

		require.Equal(t, m1.String(), m2.String())
		require.True(t, m1.Equal(m2))
	}
}

// TestS6MultiaddrParse is scenario S6 from spec.md §8.
func TestS6MultiaddrParse(t *testing.T) {
	kp, err := GenerateTestKeyPair(t)
	require.NoError(t, err)
	id, err := peer.FromPublicKey(kp)
	require.NoError(t, err)

	s := "/ip4/127.0.0.1/tcp/8080/p2p/" + id.String()
	m, err := Parse(s)
	require.NoError(t, err)

	bin := m.Bytes()
	m2, err := ParseBytes(bin)
	require.NoError(t, err)
	require.Equal(t, m.String(), m2.String())

	gotID, ok := m.PeerID()
	require.True(t, ok)
	require.True(t, id.Equal(gotID))

	// Removing the final /p2p/... is still valid.
	withoutPeer := "/ip4/127.0.0.1/tcp/8080"
	_, err = Parse(withoutPeer)
	require.NoError(t, err)

	// Inserting /tcp/... before /ip4/... fails.
	_, err = Parse("/tcp/8080/ip4/127.0.0.1")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	require.ErrorIs(t, err, ErrEmptyAddress)

	_, err = Parse("ip4/127.0.0.1")
	require.ErrorIs(t, err, ErrNotBeginWithSlash)

	_, err = Parse("/ip4//tcp/80")
	require.Error(t, err)

	_, err = Parse("/notaproto/value")
	require.ErrorIs(t, err, ErrNoSuchProtocol)
}

func TestP2PMustBeTerminal(t *testing.T) {
	kp, err := GenerateTestKeyPair(t)
	require.NoError(t, err)
	id, err := peer.FromPublicKey(kp)
	require.NoError(t, err)

	bad := Multiaddr{comps: []Component{
		NewP2PComponent(id),
		{Code: P_TCP, Value: []byte{0x1f, 0x90}},
	}}
	err = validateGrammar(bad)
	require.Error(t, err)
}

// GenerateTestKeyPair is a tiny test helper kept local to this package's
// tests to avoid importing peer's key-generation helpers into the
// production ma package.
func GenerateTestKeyPair(t *testing.T) (peer.PublicKey, error) {
	t.Helper()
	kp, err := peer.GenerateEd25519()
	if err != nil {
		return peer.PublicKey{}, err
	}
	return kp.Pub, nil
}
