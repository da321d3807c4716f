// Package tree holds the execution-context tree reconstructed from the
// event stream. A Store keeps exactly one record per context id, links
// children under their parents in first-seen order, and applies
// type-directed merges from events.
package tree

import (
	"encoding/json"
	"math"
	"time"

	"github.com/tailored-agentic-units/monitor/core/protocol"
)

// Status is the execution state of a context. The producer may send values
// beyond the three defined here; they are stored as received.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Context is one tool invocation. Output, Error and Args hold raw JSON and
// are nil when absent. Children are populated as child contexts arrive.
type Context struct {
	ID        string
	ParentID  string
	RootID    string
	ToolID    string
	ToolName  string
	Status    Status
	Output    json.RawMessage
	Error     json.RawMessage
	Args      json.RawMessage
	CreatedAt float64
	Events    []protocol.Event
	Children  []*Context
}

// IsRoot reports whether the context has no parent.
func (c *Context) IsRoot() bool {
	return c.ParentID == ""
}

// Created converts CreatedAt to a time. Zero when unset.
func (c *Context) Created() time.Time {
	if c.CreatedAt == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(c.CreatedAt)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// OutputText renders Output for display: JSON strings are unquoted, any
// other value is returned as JSON text.
func (c *Context) OutputText() string {
	return rawText(c.Output)
}

// ErrorText renders Error the same way as OutputText.
func (c *Context) ErrorText() string {
	return rawText(c.Error)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
