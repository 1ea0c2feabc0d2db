package host

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kwilteam/kwil-p2p/core/ma"
	"github.com/kwilteam/kwil-p2p/core/peer"
)

// AddrInfo pairs a peer ID with its known listen addresses, the unit
// the dialer and address book exchange, adapted from
// node/peers/peers.go's AddrInfo/PeerInfo pair.
type AddrInfo struct {
	ID    peer.ID
	Addrs []ma.Multiaddr
}

type persistedAddrInfo struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
}

// AddrBook is a JSON-persisted, in-memory index of known peer
// addresses, adapted from node/peers/peers.go's PeerMan address-book
// load/save logic (§"SUPPLEMENTED FEATURES" of SPEC_FULL.md).
type AddrBook struct {
	mu    sync.Mutex
	path  string
	addrs map[peer.ID][]ma.Multiaddr
}

// NewAddrBook constructs an AddrBook backed by path, loading any
// existing contents. A missing file is not an error (fresh book).
func NewAddrBook(path string) (*AddrBook, error) {
	ab := &AddrBook{path: path, addrs: make(map[peer.ID][]ma.Multiaddr)}
	if path == "" {
		return ab, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ab, nil
		}
		return nil, fmt.Errorf("host: reading address book %s: %w", path, err)
	}
	var entries []persistedAddrInfo
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("host: parsing address book %s: %w", path, err)
	}
	for _, e := range entries {
		id, err := peer.Decode(e.ID)
		if err != nil {
			continue
		}
		var addrs []ma.Multiaddr
		for _, a := range e.Addrs {
			parsed, err := ma.Parse(a)
			if err != nil {
				continue
			}
			addrs = append(addrs, parsed)
		}
		ab.addrs[id] = addrs
	}
	return ab, nil
}

// Add records addr for peerID if not already present.
func (ab *AddrBook) Add(peerID peer.ID, addr ma.Multiaddr) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for _, existing := range ab.addrs[peerID] {
		if existing.Equal(addr) {
			return
		}
	}
	ab.addrs[peerID] = append(ab.addrs[peerID], addr)
}

// Addrs returns the known addresses for peerID.
func (ab *AddrBook) Addrs(peerID peer.ID) []ma.Multiaddr {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return append([]ma.Multiaddr(nil), ab.addrs[peerID]...)
}

// Peers returns every peer ID the book has addresses for.
func (ab *AddrBook) Peers() []peer.ID {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	out := make([]peer.ID, 0, len(ab.addrs))
	for id := range ab.addrs {
		out = append(out, id)
	}
	return out
}

// Remove discards every address known for peerID.
func (ab *AddrBook) Remove(peerID peer.ID) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	delete(ab.addrs, peerID)
}

// Save persists the address book to disk as JSON.
func (ab *AddrBook) Save() error {
	if ab.path == "" {
		return nil
	}
	ab.mu.Lock()
	entries := make([]persistedAddrInfo, 0, len(ab.addrs))
	for id, addrs := range ab.addrs {
		e := persistedAddrInfo{ID: id.String()}
		for _, a := range addrs {
			e.Addrs = append(e.Addrs, a.String())
		}
		entries = append(entries, e)
	}
	ab.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("host: marshaling address book: %w", err)
	}
	if err := os.WriteFile(ab.path, data, 0644); err != nil {
		return fmt.Errorf("host: writing address book %s: %w", ab.path, err)
	}
	return nil
}
