package protocol

import (
	"encoding/json"
	"fmt"
)

// Context payload field names as they appear on the wire.
const (
	FieldID        = "id"
	FieldParentID  = "parent_id"
	FieldRootID    = "root_id"
	FieldToolID    = "tool_id"
	FieldToolName  = "tool_name"
	FieldStatus    = "status"
	FieldOutput    = "output"
	FieldError     = "error"
	FieldArgs      = "args"
	FieldCreatedAt = "created_at"
	FieldHistory   = "history"
	FieldChildren  = "children"
)

// ContextPayload is the producer's view of one execution context. Decoding
// records which fields were present so a re-sent context only replaces what
// it actually carries. Output, Error and Args are kept as raw JSON; a
// present null decodes to nil.
type ContextPayload struct {
	ID        string
	ParentID  string
	RootID    string
	ToolID    string
	ToolName  string
	Status    string
	Output    json.RawMessage
	Error     json.RawMessage
	Args      json.RawMessage
	CreatedAt float64
	History   []Event
	Children  []ContextPayload

	present map[string]bool
}

// Has reports whether field was present in the decoded payload.
func (p *ContextPayload) Has(field string) bool {
	return p.present[field]
}

// Set marks field as present. Payloads built in code use it to declare
// which fields they carry.
func (p *ContextPayload) Set(field string) {
	if p.present == nil {
		p.present = make(map[string]bool)
	}
	p.present[field] = true
}

func (p *ContextPayload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("context payload is not an object")
	}

	*p = ContextPayload{present: make(map[string]bool, len(fields))}

	text := map[string]*string{
		FieldID:       &p.ID,
		FieldParentID: &p.ParentID,
		FieldRootID:   &p.RootID,
		FieldToolID:   &p.ToolID,
		FieldToolName: &p.ToolName,
		FieldStatus:   &p.Status,
	}
	for name, dst := range text {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		p.present[name] = true
		if isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	raws := map[string]*json.RawMessage{
		FieldOutput: &p.Output,
		FieldError:  &p.Error,
		FieldArgs:   &p.Args,
	}
	for name, dst := range raws {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		p.present[name] = true
		if !isNull(raw) {
			*dst = append(json.RawMessage(nil), raw...)
		}
	}

	if raw, ok := fields[FieldCreatedAt]; ok {
		p.present[FieldCreatedAt] = true
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p.CreatedAt); err != nil {
				return fmt.Errorf("%s: %w", FieldCreatedAt, err)
			}
		}
	}

	if raw, ok := fields[FieldHistory]; ok {
		p.present[FieldHistory] = true
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p.History); err != nil {
				return fmt.Errorf("%s: %w", FieldHistory, err)
			}
		}
	}

	if raw, ok := fields[FieldChildren]; ok {
		p.present[FieldChildren] = true
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p.Children); err != nil {
				return fmt.Errorf("%s: %w", FieldChildren, err)
			}
		}
	}

	return nil
}
