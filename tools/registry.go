// Package tools keeps the descriptors of tools announced on the stream.
// It is the receiving end of "tool" frames; nothing here executes a tool.
package tools

import (
	"context"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/monitor/core/protocol"
	"github.com/tailored-agentic-units/monitor/observability"
)

// EventRegister is emitted for each accepted tool frame.
const EventRegister observability.EventType = "tools.register"

// Catalog is a set of tool descriptors keyed by id, in first-seen order.
// Safe for concurrent use.
type Catalog struct {
	entries  map[string]protocol.Tool
	order    []string
	observer observability.Observer
	mu       sync.RWMutex
}

// NewCatalog creates an empty Catalog. A nil observer discards events.
func NewCatalog(observer observability.Observer) *Catalog {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Catalog{
		entries:  make(map[string]protocol.Tool),
		observer: observer,
	}
}

// Register adds a tool or replaces the descriptor already held for its id.
// The producer re-announces tools on every new connection, so replacing is
// the normal case rather than a conflict.
// Returns ErrEmptyID if the descriptor has no id.
func (c *Catalog) Register(ctx context.Context, tool protocol.Tool) error {
	if tool.ID == "" {
		return ErrEmptyID
	}

	c.mu.Lock()
	_, exists := c.entries[tool.ID]
	if !exists {
		c.order = append(c.order, tool.ID)
	}
	c.entries[tool.ID] = tool
	c.mu.Unlock()

	observability.Emit(ctx, c.observer, EventRegister, observability.LevelVerbose, "tools.Register", map[string]any{
		"tool_id":   tool.ID,
		"tool_name": tool.Name,
		"replaced":  exists,
	})
	return nil
}

// Get retrieves a descriptor by id.
func (c *Catalog) Get(id string) (protocol.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, exists := c.entries[id]
	return t, exists
}

// Name returns the tool's display name, or id itself when the tool is
// unknown or unnamed.
func (c *Catalog) Name(id string) string {
	if t, ok := c.Get(id); ok && t.Name != "" {
		return t.Name
	}
	return id
}

// List returns all descriptors in first-seen order.
func (c *Catalog) List() []protocol.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]protocol.Tool, 0, len(c.order))
	for _, id := range c.order {
		t := c.entries[id]
		t.Args = slices.Clone(t.Args)
		t.Examples = slices.Clone(t.Examples)
		list = append(list, t)
	}
	return list
}

// Len returns the number of known tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
