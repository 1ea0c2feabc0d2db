package yamux

import "errors"

// Error kinds per spec.md §7 "Muxer".
var (
	ErrProtocolError    = errors.New("yamux: protocol error")
	ErrSessionShutdown  = errors.New("yamux: session shut down")
	ErrStreamReset      = errors.New("yamux: stream reset")
	ErrStreamClosed     = errors.New("yamux: stream closed")
	ErrTooManyStreams   = errors.New("yamux: too many streams")
	ErrKeepaliveTimeout = errors.New("yamux: keepalive timeout")
	ErrGoAway           = errors.New("yamux: peer sent GO_AWAY")
)
