package host

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterExactWinsOverPredicate(t *testing.T) {
	r := NewRouter()
	var calledExact, calledPredicate bool

	r.HandlePredicate(func(p string) bool { return strings.HasPrefix(p, "/kwil/") }, func(net.Conn, string) {
		calledPredicate = true
	})
	r.Handle("/kwil/tx/1.0.0", func(net.Conn, string) { calledExact = true })

	h, ok := r.Lookup("/kwil/tx/1.0.0")
	require.True(t, ok)
	h(nil, "/kwil/tx/1.0.0")
	require.True(t, calledExact)
	require.False(t, calledPredicate)
}

func TestRouterPredicateFirstRegisteredWins(t *testing.T) {
	r := NewRouter()
	var which string
	r.HandlePredicate(func(string) bool { return true }, func(net.Conn, string) { which = "first" })
	r.HandlePredicate(func(string) bool { return true }, func(net.Conn, string) { which = "second" })

	h, ok := r.Lookup("/anything")
	require.True(t, ok)
	h(nil, "/anything")
	require.Equal(t, "first", which)
}

func TestRouterUnregister(t *testing.T) {
	r := NewRouter()
	r.Handle("/foo", func(net.Conn, string) {})
	r.Unregister("/foo")
	_, ok := r.Lookup("/foo")
	require.False(t, ok)
}
