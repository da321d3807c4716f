package conn

import (
	"context"
	"sync/atomic"
)

// Queue is the bounded FIFO between the transport reader and the processing
// loop. Send blocks while the queue is full, so a slow consumer slows the
// reader instead of losing frames.
type Queue struct {
	channel chan []byte
	size    int
	closed  atomic.Bool
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		channel: make(chan []byte, size),
		size:    size,
	}
}

// Send enqueues frame, waiting for space until ctx is done.
// Send must not be called after Close.
func (q *Queue) Send(ctx context.Context, frame []byte) error {
	select {
	case q.channel <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next frame, waiting until one arrives, ctx is done,
// or the queue is closed and empty (ErrClosed).
func (q *Queue) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-q.channel:
		if !ok {
			return nil, ErrClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive returns a buffered frame without waiting.
func (q *Queue) TryReceive() ([]byte, bool) {
	select {
	case frame, ok := <-q.channel:
		return frame, ok
	default:
		return nil, false
	}
}

// Chan exposes the queue for select loops. After Close it still yields the
// buffered frames before reporting closed.
func (q *Queue) Chan() <-chan []byte {
	return q.channel
}

// Close marks the end of the stream. Buffered frames remain receivable.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.channel)
	}
}

func (q *Queue) IsClosed() bool {
	return q.closed.Load()
}

func (q *Queue) Size() int {
	return q.size
}

func (q *Queue) Len() int {
	return len(q.channel)
}
