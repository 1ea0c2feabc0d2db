// Package yamux implements the Yamux stream multiplexer of spec.md §4.4:
// one MuxedConnection carries many independent, flow-controlled Streams
// over a single SecureConn.
package yamux

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	protoVersion = 0

	frameHeaderLen = 12
)

// frameType identifies the kind of a Yamux frame, per spec.md §4.4.
type frameType uint8

const (
	typeData frameType = iota
	typeWindowUpdate
	typePing
	typeGoAway
)

func (t frameType) String() string {
	switch t {
	case typeData:
		return "DATA"
	case typeWindowUpdate:
		return "WINDOW_UPDATE"
	case typePing:
		return "PING"
	case typeGoAway:
		return "GO_AWAY"
	default:
		return fmt.Sprintf("frameType(%d)", t)
	}
}

// flags, bitwise-OR'd into a frame header.
type flags uint16

const (
	flagSYN flags = 1 << iota
	flagACK
	flagFIN
	flagRST
)

// GO_AWAY error codes.
const (
	goAwayNormal uint32 = iota
	goAwayProtocolError
	goAwayInternalError
)

// header is the 12-byte Yamux frame header of spec.md §4.4: version(1),
// type(1), flags(2), streamID(4), length(4).
type header struct {
	typ      frameType
	flags    flags
	streamID uint32
	length   uint32
}

func (h header) encode() [frameHeaderLen]byte {
	var b [frameHeaderLen]byte
	b[0] = protoVersion
	b[1] = byte(h.typ)
	binary.BigEndian.PutUint16(b[2:4], uint16(h.flags))
	binary.BigEndian.PutUint32(b[4:8], h.streamID)
	binary.BigEndian.PutUint32(b[8:12], h.length)
	return b
}

func decodeHeader(b [frameHeaderLen]byte) (header, error) {
	if b[0] != protoVersion {
		return header{}, fmt.Errorf("%w: version %d", ErrProtocolError, b[0])
	}
	return header{
		typ:      frameType(b[1]),
		flags:    flags(binary.BigEndian.Uint16(b[2:4])),
		streamID: binary.BigEndian.Uint32(b[4:8]),
		length:   binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

func writeFrame(w io.Writer, h header, payload []byte) error {
	enc := h.encode()
	if _, err := w.Write(enc[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readHeader(r io.Reader) (header, error) {
	var b [frameHeaderLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return header{}, err
	}
	return decodeHeader(b)
}
