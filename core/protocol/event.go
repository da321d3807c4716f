package protocol

import (
	"encoding/json"
	"fmt"
)

// Event types that change a context's top-level fields. Any other type is
// recorded in history only.
const (
	EventContextUpdate = "context_update"
	EventToolReturn    = "tool_return"
	EventToolException = "tool_exception"
)

// Event is one incremental update record. Raw holds the record exactly as
// received and is what gets re-encoded, so history is kept verbatim.
type Event struct {
	Type      string
	Timestamp float64
	Data      json.RawMessage
	Raw       json.RawMessage
}

// NewEvent builds an event in code, encoding data as its payload.
func NewEvent(typ string, data any) (Event, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode event data: %w", err)
	}
	raw, err := json.Marshal(map[string]json.RawMessage{
		"type": mustString(typ),
		"data": encoded,
	})
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	return Event{Type: typ, Data: encoded, Raw: raw}, nil
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type      *string         `json:"type"`
		Timestamp *float64        `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*e = Event{Raw: append(json.RawMessage(nil), data...)}
	if wire.Type != nil {
		e.Type = *wire.Type
	}
	if wire.Timestamp != nil {
		e.Timestamp = *wire.Timestamp
	}
	if len(wire.Data) > 0 && !isNull(wire.Data) {
		e.Data = wire.Data
	}
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	out := map[string]any{"type": e.Type}
	if e.Timestamp != 0 {
		out["timestamp"] = e.Timestamp
	}
	if len(e.Data) > 0 {
		out["data"] = e.Data
	}
	return json.Marshal(out)
}

func mustString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
