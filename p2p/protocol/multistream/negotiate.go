package multistream

import (
	"bufio"
	"net"
)

// conn wraps a net.Conn with the bufio.Reader used to read negotiation
// lines from it, so that any bytes the peer pipelined immediately after
// the final negotiation response are not lost to the caller's next
// read.
type conn struct {
	net.Conn
	r *bufio.Reader
}

func (c *conn) Read(p []byte) (int, error) { return c.r.Read(p) }

// CloseWrite half-closes the underlying connection when it supports
// half-close, and closes it fully otherwise.
func (c *conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

// Wrap adapts a plain net.Conn that has already completed negotiation
// (or never needed it) to the same wrapped-conn type SelectOneOf and
// ListenOneOf return, so upgrader stages have a uniform type to pass
// along the pipeline.
func Wrap(c net.Conn) net.Conn {
	if wc, ok := c.(*conn); ok {
		return wc
	}
	return &conn{Conn: c, r: bufio.NewReader(c)}
}

// SelectOneOf runs the negotiator side of multistream-select: it
// performs the greeting handshake, then offers each of protocols in
// order until the peer accepts one. It is used for both the general
// multi-candidate form and, with a single-element slice, the "simple
// yes/no" specialization of spec.md §4.5. It returns a net.Conn that
// preserves any bytes read past the negotiation response.
func SelectOneOf(c net.Conn, protocols []string) (string, net.Conn, error) {
	wc := Wrap(c)
	wrapped := wc.(*conn)
	if err := handshake(wrapped.Conn, wrapped.r); err != nil {
		return "", nil, err
	}
	for _, proto := range protocols {
		if err := writeLine(wrapped.Conn, proto); err != nil {
			return "", nil, err
		}
		resp, err := readLine(wrapped.r)
		if err != nil {
			return "", nil, err
		}
		if resp == proto {
			return proto, wc, nil
		}
		if resp != naResponse {
			return "", nil, ErrUnexpectedResponse
		}
	}
	return "", nil, ErrNotSupported
}

// SelectOne is the single-protocol specialization: it offers exactly
// one protocol and fails with ErrNotSupported on "na".
func SelectOne(c net.Conn, protocol string) (net.Conn, error) {
	_, wc, err := SelectOneOf(c, []string{protocol})
	return wc, err
}
