package tree

import "github.com/tailored-agentic-units/monitor/observability"

// Store event types.
const (
	EventContextUpsert  observability.EventType = "tree.context.upsert"
	EventContextOrphan  observability.EventType = "tree.context.orphan"
	EventContextCycle   observability.EventType = "tree.context.cycle"
	EventParentConflict observability.EventType = "tree.context.parent_conflict"
	EventMissingID      observability.EventType = "tree.context.missing_id"
	EventHistoryIgnored observability.EventType = "tree.context.history_ignored"
	EventAppend         observability.EventType = "tree.event.append"
	EventOrphanEvent    observability.EventType = "tree.event.orphan"
	EventInvalidEvent   observability.EventType = "tree.event.invalid"
	EventFieldsIgnored  observability.EventType = "tree.event.fields_ignored"
	EventReset          observability.EventType = "tree.reset"
)
