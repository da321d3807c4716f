package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/monitor/core/protocol"
)

// fieldSetter decodes one context_update value and returns the write to
// perform. Decoding and writing are split so a bad value rejects the whole
// update before anything is written.
type fieldSetter func(raw json.RawMessage) (func(*Context), error)

// mutableFields is the closed set of context fields a context_update event
// may overwrite. Structural fields (id, parent_id, events, children) never
// change through an update.
var mutableFields = map[string]fieldSetter{
	protocol.FieldStatus:    stringField(func(c *Context, v string) { c.Status = Status(v) }),
	protocol.FieldRootID:    stringField(func(c *Context, v string) { c.RootID = v }),
	protocol.FieldToolID:    stringField(func(c *Context, v string) { c.ToolID = v }),
	protocol.FieldToolName:  stringField(func(c *Context, v string) { c.ToolName = v }),
	protocol.FieldOutput:    rawField(func(c *Context, v json.RawMessage) { c.Output = v }),
	protocol.FieldError:     rawField(func(c *Context, v json.RawMessage) { c.Error = v }),
	protocol.FieldArgs:      rawField(func(c *Context, v json.RawMessage) { c.Args = v }),
	protocol.FieldCreatedAt: floatField(func(c *Context, v float64) { c.CreatedAt = v }),
}

// MutableFields lists the field names context_update may change.
func MutableFields() []string {
	names := make([]string, 0, len(mutableFields))
	for name := range mutableFields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func stringField(set func(*Context, string)) fieldSetter {
	return func(raw json.RawMessage) (func(*Context), error) {
		var v string
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
		}
		return func(c *Context) { set(c, v) }, nil
	}
}

func floatField(set func(*Context, float64)) fieldSetter {
	return func(raw json.RawMessage) (func(*Context), error) {
		var v float64
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
		}
		return func(c *Context) { set(c, v) }, nil
	}
}

func rawField(set func(*Context, json.RawMessage)) fieldSetter {
	return func(raw json.RawMessage) (func(*Context), error) {
		var v json.RawMessage
		if !isNull(raw) {
			v = append(json.RawMessage(nil), raw...)
		}
		return func(c *Context) { set(c, v) }, nil
	}
}

// plan is the set of writes an event will make, computed before the store
// is touched.
type plan struct {
	writes  []func(*Context)
	ignored []string
}

func (p plan) apply(c *Context) {
	for _, w := range p.writes {
		w(c)
	}
}

// planEvent computes the type-directed merge for ev.
func planEvent(ev protocol.Event) (plan, error) {
	switch ev.Type {
	case protocol.EventContextUpdate:
		return planUpdate(ev.Data)
	case protocol.EventToolReturn:
		output := ev.Data
		return plan{writes: []func(*Context){func(c *Context) {
			c.Output = output
			c.Status = StatusComplete
		}}}, nil
	case protocol.EventToolException:
		failure := ev.Data
		return plan{writes: []func(*Context){func(c *Context) {
			c.Error = failure
			c.Status = StatusError
		}}}, nil
	default:
		return plan{}, nil
	}
}

func planUpdate(data json.RawMessage) (plan, error) {
	if len(data) == 0 {
		return plan{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return plan{}, fmt.Errorf("%w: context_update data: %v", ErrInvalidEvent, err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var p plan
	for _, key := range keys {
		setter, ok := mutableFields[key]
		if !ok {
			p.ignored = append(p.ignored, key)
			continue
		}
		write, err := setter(fields[key])
		if err != nil {
			return plan{}, fmt.Errorf("%w: context_update %s: %v", ErrInvalidEvent, key, err)
		}
		p.writes = append(p.writes, write)
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
