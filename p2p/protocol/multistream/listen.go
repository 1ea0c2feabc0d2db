package multistream

import (
	"io"
	"net"

	"github.com/kwilteam/kwil-p2p/core/varint"
)

// ListenOneOf runs the listener side of multistream-select: it performs
// the greeting handshake, then reads offered protocol names until one
// is in supported (replied with an echo and returned), the peer sends
// "ls" (replied with the supported list, per spec.md §4.5), or the
// stream closes.
func ListenOneOf(c net.Conn, supported []string) (string, net.Conn, error) {
	supportedSet := make(map[string]bool, len(supported))
	for _, p := range supported {
		supportedSet[p] = true
	}
	return ListenOneOfFunc(c, func(offer string) bool { return supportedSet[offer] }, supported)
}

// ListenOneOfFunc is ListenOneOf generalized to an arbitrary acceptance
// predicate instead of a static name list, so a listener whose
// supported protocols include predicate-matched names (spec.md §4.8's
// router: "exact-match protocol name, then predicate-matching") can
// accept an offer without first enumerating every name it might match.
// listed is only used to answer "ls" requests.
func ListenOneOfFunc(c net.Conn, accept func(offer string) bool, listed []string) (string, net.Conn, error) {
	wc := Wrap(c)
	wrapped := wc.(*conn)
	if err := handshake(wrapped.Conn, wrapped.r); err != nil {
		return "", nil, err
	}

	for {
		offer, err := readLine(wrapped.r)
		if err != nil {
			return "", nil, err
		}
		switch {
		case offer == lsRequest:
			if err := writeLsResponse(wrapped.Conn, listed); err != nil {
				return "", nil, err
			}
		case accept(offer):
			if err := writeLine(wrapped.Conn, offer); err != nil {
				return "", nil, err
			}
			return offer, wc, nil
		default:
			if err := writeLine(wrapped.Conn, naResponse); err != nil {
				return "", nil, err
			}
		}
	}
}

func writeLsResponse(w io.Writer, protocols []string) error {
	if err := varint.WriteMessage(w, varint.AppendUvarint(nil, uint64(len(protocols)))); err != nil {
		return err
	}
	for _, p := range protocols {
		if err := writeLine(w, p); err != nil {
			return err
		}
	}
	return nil
}
