package monitor

import "github.com/tailored-agentic-units/monitor/observability"

// Monitor event types emitted by the processing loop.
const (
	EventRunStart     observability.EventType = "monitor.run.start"
	EventRunComplete  observability.EventType = "monitor.run.complete"
	EventConnectError observability.EventType = "monitor.connect.error"
	EventDrain        observability.EventType = "monitor.drain"
)
