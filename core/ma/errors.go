package ma

import "errors"

// Error kinds per spec.md §7 "Multiaddress".
var (
	ErrNotBeginWithSlash = errors.New("ma: address does not begin with a slash")
	ErrEmptyProtocol     = errors.New("ma: empty protocol segment")
	ErrNoSuchProtocol    = errors.New("ma: no such protocol")
	ErrNotImplemented    = errors.New("ma: protocol not implemented")
	ErrEmptyAddress      = errors.New("ma: empty address")
	ErrInvalidAddress    = errors.New("ma: invalid address")
)
