package patch

import "errors"

var (
	ErrPathMismatch    = errors.New("path does not match document shape")
	ErrIndexOutOfRange = errors.New("sequence index out of range")
	ErrUnknownOp       = errors.New("unknown patch op")
)
