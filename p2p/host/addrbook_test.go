package host

import (
	"path/filepath"
	"testing"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestAddrBookPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "addrbook.json")

	ab, err := NewAddrBook(path)
	require.NoError(t, err)

	kp, err := peer.GenerateEd25519()
	require.NoError(t, err)
	id, err := peer.FromPublicKey(kp.Pub)
	require.NoError(t, err)

	addr, err := ma.Parse("/ip4/127.0.0.1/tcp/4000")
	require.NoError(t, err)
	ab.Add(id, addr)
	ab.Add(id, addr) // duplicate, should not double up
	require.Len(t, ab.Addrs(id), 1)

	require.NoError(t, ab.Save())

	reloaded, err := NewAddrBook(path)
	require.NoError(t, err)
	addrs := reloaded.Addrs(id)
	require.Len(t, addrs, 1)
	require.True(t, addrs[0].Equal(addr))
}

func TestAddrBookMissingFileIsEmpty(t *testing.T) {
	ab, err := NewAddrBook(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Empty(t, ab.Peers())
}
