package noise

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// maxPlaintextLen bounds a single transport frame's plaintext so that,
// once the 16-byte Poly1305 tag is added, the ciphertext still fits in
// the 2-byte length prefix (spec.md §4.3/§6).
const maxPlaintextLen = maxFrameLen - 16

// transport wraps a handshake's two split cipher states and turns them
// into a framed, encrypted byte stream: each Write is one AEAD-sealed
// frame, each Read returns (part of) one AEAD-opened frame.
type transport struct {
	raw io.ReadWriter
	r   *bufio.Reader

	writeMu sync.Mutex
	send    cipherState

	readMu  sync.Mutex
	recv    cipherState
	pending []byte // leftover plaintext from a frame not fully consumed
}

func newTransport(raw io.ReadWriter, send, recv cipherState) *transport {
	return &transport{
		raw:  raw,
		r:    bufio.NewReader(raw),
		send: send,
		recv: recv,
	}
}

// Write encrypts and sends p as one or more length-prefixed frames.
func (t *transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlaintextLen {
			chunk = chunk[:maxPlaintextLen]
		}
		ct, err := t.send.encryptWithAD(nil, chunk)
		if err != nil {
			return total, err
		}
		if err := writeFrame(t.raw, ct); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// Read returns decrypted application bytes, draining any leftover from
// a previously over-read frame before pulling the next one off the wire.
func (t *transport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if len(t.pending) == 0 {
		ct, err := readFrame(t.r)
		if err != nil {
			return 0, err
		}
		pt, err := t.recv.decryptWithAD(nil, ct)
		if err != nil {
			return 0, fmt.Errorf("noise: transport frame: %w", err)
		}
		t.pending = pt
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}
