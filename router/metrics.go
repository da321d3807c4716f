package router

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of the router counters.
type MetricsSnapshot struct {
	Dispatched int64 // handled without error
	Dropped    int64 // undecodable frames
	Ignored    int64 // frames of unhandled types
	Rejected   int64 // handler errors: unknown contexts, invalid payloads
}

// Metrics counts dispatch outcomes.
type Metrics struct {
	dispatched atomic.Int64
	dropped    atomic.Int64
	ignored    atomic.Int64
	rejected   atomic.Int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Dispatched: m.dispatched.Load(),
		Dropped:    m.dropped.Load(),
		Ignored:    m.ignored.Load(),
		Rejected:   m.rejected.Load(),
	}
}
