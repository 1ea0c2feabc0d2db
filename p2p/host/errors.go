package host

import "errors"

// Error kinds per spec.md §7 "Dialer".
var (
	ErrTimeout     = errors.New("host: dial timeout")
	ErrUnreachable = errors.New("host: peer unreachable")
	ErrNoTransport = errors.New("host: no transport for any known address")
	ErrCancelled   = errors.New("host: dial cancelled")
	ErrNoAddrs     = errors.New("host: no known addresses for peer")
)
