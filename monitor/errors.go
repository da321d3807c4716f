package monitor

import "errors"

var (
	// ErrNotRunning is returned by requests that need the processing loop
	// when Run is not active.
	ErrNotRunning = errors.New("monitor not running")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("monitor already running")
)
