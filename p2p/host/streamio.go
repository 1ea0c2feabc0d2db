// Request/response helpers over an application stream, adapted from
// node/protocol.go's requestFrom/request/readResp: a stream carries one
// request followed by one response read until EOF, which is the
// pattern SPEC_FULL.md's ping/echo test fixture and any similar
// request/reply protocol built on top of a negotiated stream uses.
package host

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
)

// defaultRequestTimeout bounds a request/response exchange when ctx
// carries no deadline, mirroring node/protocol.go's txGetTimeout.
const defaultRequestTimeout = 10 * time.Second

// RequestFrom opens a new stream to peerID negotiating protocol,
// writes reqMsg, and reads the response until the peer closes its
// write side (EOF), capped at readLimit bytes.
func RequestFrom(ctx context.Context, dialer *Dialer, peerID peer.ID, protocol string, reqMsg []byte, readLimit int64) ([]byte, error) {
	stream, _, err := dialer.NewStream(ctx, peerID, []string{protocol})
	if err != nil {
		return nil, fmt.Errorf("host: new stream to %s: %w", peerID, err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	return Request(stream, reqMsg, readLimit)
}

// Request writes reqMsg then reads the response until EOF, matching
// node/protocol.go's request/readResp pair.
func Request(rw net.Conn, reqMsg []byte, readLimit int64) ([]byte, error) {
	if _, err := rw.Write(reqMsg); err != nil {
		return nil, fmt.Errorf("host: request write failed: %w", err)
	}
	resp, err := readUntilClose(rw, readLimit)
	if err != nil {
		return nil, fmt.Errorf("host: reading response: %w", err)
	}
	return resp, nil
}

// readUntilClose reads until EOF (the peer closed its write side),
// the end-of-protocol signal node/protocol.go's readResp relies on.
func readUntilClose(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// Respond writes resp to stream and closes the write side, signaling
// end-of-response to a peer reading until EOF via Request.
func Respond(stream net.Conn, resp []byte) error {
	if _, err := stream.Write(resp); err != nil {
		return fmt.Errorf("host: response write failed: %w", err)
	}
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := stream.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return stream.Close()
}
