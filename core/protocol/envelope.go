// Package protocol defines the wire contract between the execution framework
// and the monitor: one JSON object per WebSocket frame, discriminated by its
// "type" field.
//
//	{"type": "context", "data": {...}}            nested context payload
//	{"type": "context", "id": "...", ...}         flat context payload
//	{"type": "event", "context_id": "...", "data": {...}}
//	{"type": "tool", "data": {...}}
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType discriminates envelopes.
type MessageType string

const (
	TypeContext MessageType = "context"
	TypeEvent   MessageType = "event"
	TypeTool    MessageType = "tool"
)

// Envelope is a decoded frame. Data holds the nested payload verbatim; the
// full frame is retained so flat context payloads can be decoded from it.
type Envelope struct {
	Type      MessageType
	ContextID string
	Data      json.RawMessage
	frame     []byte
}

// Decode parses a single frame. It fails with ErrMalformed when the frame is
// not a JSON object or a known envelope field has the wrong type, and with
// ErrMissingType when the discriminator is absent.
func Decode(frame []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	rawType, ok := fields["type"]
	if !ok || isNull(rawType) {
		return nil, ErrMissingType
	}

	env := &Envelope{frame: frame}

	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}
	if typ == "" {
		return nil, ErrMissingType
	}
	env.Type = MessageType(typ)

	if raw, ok := fields["context_id"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &env.ContextID); err != nil {
			return nil, fmt.Errorf("%w: context_id: %v", ErrMalformed, err)
		}
	}

	if raw, ok := fields["data"]; ok && !isNull(raw) {
		env.Data = raw
	}

	return env, nil
}

// Context decodes the context payload, preferring the nested "data" object
// and falling back to fields at the top level of the frame.
func (e *Envelope) Context() (ContextPayload, error) {
	var p ContextPayload
	src := e.frame
	if len(e.Data) > 0 {
		src = e.Data
	}
	if err := json.Unmarshal(src, &p); err != nil {
		return ContextPayload{}, fmt.Errorf("%w: context payload: %v", ErrMalformed, err)
	}
	return p, nil
}

// Event decodes the event payload addressed to ContextID.
func (e *Envelope) Event() (Event, error) {
	if e.ContextID == "" {
		return Event{}, ErrMissingContextID
	}
	if len(e.Data) == 0 {
		return Event{}, fmt.Errorf("%w: event has no data", ErrMalformed)
	}

	var ev Event
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: event payload: %v", ErrMalformed, err)
	}
	return ev, nil
}

// Tool decodes a tool registration payload.
func (e *Envelope) Tool() (Tool, error) {
	if len(e.Data) == 0 {
		return Tool{}, fmt.Errorf("%w: tool has no data", ErrMalformed)
	}

	var t Tool
	if err := json.Unmarshal(e.Data, &t); err != nil {
		return Tool{}, fmt.Errorf("%w: tool payload: %v", ErrMalformed, err)
	}
	return t, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
