package multistream

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSelectAccepted covers spec.md §8 property 9: when the offerer's
// list includes a protocol the listener supports, negotiation succeeds
// with that protocol chosen.
func TestSelectAccepted(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	resultCh := make(chan string, 1)
	go func() {
		proto, _, err := ListenOneOf(c2, []string{"/yamux/1.0.0"})
		require.NoError(t, err)
		resultCh <- proto
	}()

	proto, _, err := SelectOneOf(c1, []string{"/noise", "/yamux/1.0.0"})
	require.NoError(t, err)
	require.Equal(t, "/yamux/1.0.0", proto)
	require.Equal(t, "/yamux/1.0.0", <-resultCh)
}

// TestSelectRejectedThenAccepted is scenario S2: the first candidate is
// rejected with "na", the second succeeds.
func TestSelectRejectedThenAccepted(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go func() {
		_, _, _ = ListenOneOf(c2, []string{"/noise"})
	}()

	proto, _, err := SelectOneOf(c1, []string{"/tls", "/noise"})
	require.NoError(t, err)
	require.Equal(t, "/noise", proto)
}

// TestSelectNoneSupported covers the case where the listener supports
// none of the offered protocols.
func TestSelectNoneSupported(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go func() {
		_, _, _ = ListenOneOf(c2, []string{"/noise"})
	}()

	_, _, err := SelectOneOf(c1, []string{"/tls"})
	require.ErrorIs(t, err, ErrNotSupported)
}

// TestListenOneOfFuncAcceptsByPredicate covers a listener whose accept
// rule can't be expressed as a static name list (e.g. a router with
// predicate-registered handlers): the offer is accepted purely because
// the predicate matches, not because it's in listed.
func TestListenOneOfFuncAcceptsByPredicate(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	accept := func(offer string) bool { return strings.HasPrefix(offer, "/kwil/") }

	resultCh := make(chan string, 1)
	go func() {
		proto, _, err := ListenOneOfFunc(c2, accept, nil)
		require.NoError(t, err)
		resultCh <- proto
	}()

	proto, _, err := SelectOneOf(c1, []string{"/kwil/tx/2.0.0"})
	require.NoError(t, err)
	require.Equal(t, "/kwil/tx/2.0.0", proto)
	require.Equal(t, "/kwil/tx/2.0.0", <-resultCh)
}
