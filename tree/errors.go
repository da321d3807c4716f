package tree

import "errors"

// Sentinel errors for store operations. None of them leave the store
// partially modified.
var (
	ErrMissingID      = errors.New("context payload has no id")
	ErrUnknownContext = errors.New("unknown context")
	ErrInvalidEvent   = errors.New("invalid event payload")
)
