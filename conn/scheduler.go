package conn

import "time"

// Scheduler runs fn once after d. The returned stop function cancels the
// call if it has not started and reports whether it did so.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
