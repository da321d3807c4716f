package conn

import "github.com/tailored-agentic-units/monitor/observability"

// Connection event types.
const (
	EventState          observability.EventType = "conn.state"
	EventDialError      observability.EventType = "conn.dial.error"
	EventLost           observability.EventType = "conn.lost"
	EventRetryScheduled observability.EventType = "conn.retry.scheduled"
	EventRetryAttempt   observability.EventType = "conn.retry.attempt"
	EventRetryExhausted observability.EventType = "conn.retry.exhausted"
	EventRetryCancelled observability.EventType = "conn.retry.cancelled"
)
