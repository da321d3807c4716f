package conn

import "errors"

var (
	// ErrClosed is returned by operations on a Manager or Queue after Close.
	ErrClosed = errors.New("connection manager closed")

	// ErrExhausted is returned by Connect when the retry budget is spent.
	// Reconnect clears it.
	ErrExhausted = errors.New("reconnect attempts exhausted")
)
