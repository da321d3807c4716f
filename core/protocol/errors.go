package protocol

import "errors"

// Sentinel errors for frame decoding.
var (
	ErrMalformed        = errors.New("malformed frame")
	ErrMissingType      = errors.New("frame has no type")
	ErrMissingContextID = errors.New("event frame has no context_id")
)
