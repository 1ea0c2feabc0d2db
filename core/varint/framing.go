package varint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrMessageTooLarge is returned when a length-prefixed read declares a
// payload larger than the caller's configured maximum.
var ErrMessageTooLarge = errors.New("varint: length-prefixed message exceeds maximum size")

// WriteMessage writes a length-prefixed message: uvarint(len(payload)) ||
// payload.
func WriteMessage(w io.Writer, payload []byte) error {
	buf := AppendUvarint(make([]byte, 0, MaxLen+len(payload)), uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a length-prefixed message from r. maxLen bounds the
// declared payload length to guard against a hostile or corrupt length
// prefix; a declared length greater than maxLen is a terminal error for
// the caller's read loop, not a partial read.
func ReadMessage(r *bufio.Reader, maxLen int) ([]byte, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("varint: reading length prefix: %w", err)
	}
	if maxLen > 0 && n > uint64(maxLen) {
		return nil, ErrMessageTooLarge
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("varint: reading %d-byte payload: %w", n, err)
	}
	return buf, nil
}
