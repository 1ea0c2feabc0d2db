// Package multistream implements multistream-select, the byte-level
// protocol negotiation of spec.md §4.5: both peers exchange a greeting,
// then the negotiator offers protocol strings one at a time until the
// peer accepts one, rejects with "na", or asks for "ls".
package multistream

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/kwilteam/kwil-p2p/core/varint"
)

// ProtocolID is the multistream-select protocol's own identifier, sent
// as the greeting line on every connection before any negotiation.
const ProtocolID = "/multistream/1.0.0"

// naResponse is the listener's literal rejection line.
const naResponse = "na"

// lsRequest asks the listener to enumerate its supported protocols.
const lsRequest = "ls"

// maxLineLen bounds a single negotiation line; protocol names are short
// and this guards against a hostile or corrupt length prefix.
const maxLineLen = 64 * 1024

var (
	ErrNotSupported       = errors.New("multistream: peer does not support any offered protocol")
	ErrUnexpectedGreeting = errors.New("multistream: unexpected greeting")
	ErrUnexpectedResponse = errors.New("multistream: unexpected response")
)

func writeLine(w io.Writer, s string) error {
	return varint.WriteMessage(w, append([]byte(s), '\n'))
}

func readLine(r *bufio.Reader) (string, error) {
	b, err := varint.ReadMessage(r, maxLineLen)
	if err != nil {
		return "", err
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return "", fmt.Errorf("%w: missing terminating newline", ErrUnexpectedResponse)
	}
	return string(b[:len(b)-1]), nil
}

// handshake exchanges and verifies the `/multistream/1.0.0` greeting
// both peers must send as their first message. The greeting is written
// concurrently with reading the peer's, so two peers on an unbuffered
// connection do not block on each other's writes.
func handshake(w io.Writer, r *bufio.Reader) error {
	werr := make(chan error, 1)
	go func() { werr <- writeLine(w, ProtocolID) }()
	got, err := readLine(r)
	if err != nil {
		return fmt.Errorf("multistream: reading greeting: %w", err)
	}
	if err := <-werr; err != nil {
		return fmt.Errorf("multistream: sending greeting: %w", err)
	}
	if got != ProtocolID {
		return fmt.Errorf("%w: got %q", ErrUnexpectedGreeting, got)
	}
	return nil
}
