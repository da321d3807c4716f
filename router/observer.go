package router

import "github.com/tailored-agentic-units/monitor/observability"

// Router event types.
const (
	EventDecodeError  observability.EventType = "router.decode.error"
	EventTypeIgnored  observability.EventType = "router.type.ignored"
	EventHandlerError observability.EventType = "router.handler.error"
	EventDispatch     observability.EventType = "router.dispatch"
)
