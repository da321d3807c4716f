package tree

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/monitor/core/protocol"
	"github.com/tailored-agentic-units/monitor/observability"
)

// ChangeKind identifies what a Change reports.
type ChangeKind int

const (
	ChangeContext ChangeKind = iota // a context was created or updated
	ChangeEvent                     // an event was appended
	ChangeReset                     // the store was cleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeContext:
		return "context"
	case ChangeEvent:
		return "event"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is delivered to the change listener after every successful
// mutation. ContextID is empty for ChangeReset.
type Change struct {
	Kind      ChangeKind
	ContextID string
}

// Reader is the read side of a Store. Every method returns copies; callers
// may keep or modify results freely.
type Reader interface {
	Get(id string) (*Context, bool)
	Roots() []*Context
	Orphans() []string
	Len() int
	Snapshot() Snapshot
}

// Writer is the mutation side of a Store. The router is its only holder.
type Writer interface {
	UpsertContext(ctx context.Context, payload protocol.ContextPayload) error
	AppendEvent(ctx context.Context, contextID string, event protocol.Event) error
	Reset(ctx context.Context)
}

// Option configures a Store.
type Option func(*Store)

// WithObserver sets the observer that receives store events.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithChangeListener sets the function called after each successful
// mutation. It runs on the writer's goroutine with no lock held and must not
// block.
func WithChangeListener(fn func(Change)) Option {
	return func(s *Store) { s.onChange = fn }
}

// Store is the in-memory context tree. Mutations are expected from a single
// writer; the lock exists so readers on other goroutines observe complete
// operations only.
type Store struct {
	mu       sync.RWMutex
	all      map[string]*Context
	order    []string
	roots    []*Context
	isRoot   map[string]bool
	attached map[string]bool
	warned   map[string]bool // orphans already reported

	observer observability.Observer
	onChange func(Change)
}

var (
	_ Reader = (*Store)(nil)
	_ Writer = (*Store)(nil)
)

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		observer: observability.NoOpObserver{},
	}
	s.clear()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clear() {
	s.all = make(map[string]*Context)
	s.order = nil
	s.roots = nil
	s.isRoot = make(map[string]bool)
	s.attached = make(map[string]bool)
	s.warned = make(map[string]bool)
}

// notice is an observer event recorded under the lock and emitted after it
// is released.
type notice struct {
	typ   observability.EventType
	level observability.Level
	data  map[string]any
}

type batch struct {
	notices []notice
	changed []string
}

func (b *batch) note(typ observability.EventType, level observability.Level, data map[string]any) {
	b.notices = append(b.notices, notice{typ: typ, level: level, data: data})
}

func (s *Store) flush(ctx context.Context, source string, kind ChangeKind, b *batch) {
	for _, n := range b.notices {
		observability.Emit(ctx, s.observer, n.typ, n.level, source, n.data)
	}
	if s.onChange == nil {
		return
	}
	for _, id := range b.changed {
		s.onChange(Change{Kind: kind, ContextID: id})
	}
}

// UpsertContext creates the context named by payload.ID or merges the
// payload's present fields into the existing record. Nested children in the
// payload are upserted as well, parented to the enclosing context unless
// they name a parent of their own.
//
// Placement follows the payload's parent: no parent puts the context in the
// root index; a known parent appends it to that parent's children once; an
// unknown parent leaves it recorded but unattached. An unattached context is
// not revisited when its parent arrives later, only when it is upserted again.
func (s *Store) UpsertContext(ctx context.Context, payload protocol.ContextPayload) error {
	if id, ok := firstMissingID(&payload); !ok {
		observability.Emit(ctx, s.observer, EventMissingID, observability.LevelWarning, "tree.UpsertContext", map[string]any{
			"parent_of_missing": id,
		})
		return ErrMissingID
	}

	var b batch
	s.mu.Lock()
	s.upsert(&payload, "", &b)
	s.mu.Unlock()

	s.flush(ctx, "tree.UpsertContext", ChangeContext, &b)
	return nil
}

// firstMissingID walks the payload and its nested children. When a payload
// has no id it returns the id of its enclosing payload and false.
func firstMissingID(p *protocol.ContextPayload) (string, bool) {
	if p.ID == "" {
		return "", false
	}
	for i := range p.Children {
		if _, ok := firstMissingID(&p.Children[i]); !ok {
			return p.ID, false
		}
	}
	return "", true
}

func (s *Store) upsert(p *protocol.ContextPayload, enclosing string, b *batch) {
	parent := p.ParentID
	if parent == "" && enclosing != "" {
		parent = enclosing
	}

	c, exists := s.all[p.ID]
	if !exists {
		c = &Context{ID: p.ID, ParentID: parent}
		s.all[p.ID] = c
		s.order = append(s.order, p.ID)
	} else if (p.Has(protocol.FieldParentID) || enclosing != "") && parent != c.ParentID {
		b.note(EventParentConflict, observability.LevelWarning, map[string]any{
			"id":        c.ID,
			"parent_id": c.ParentID,
			"ignored":   parent,
		})
	}

	applyPayload(c, p, !exists)

	if p.Has(protocol.FieldHistory) {
		if len(p.History) >= len(c.Events) {
			c.Events = slices.Clone(p.History)
		} else {
			b.note(EventHistoryIgnored, observability.LevelVerbose, map[string]any{
				"id":      c.ID,
				"history": len(p.History),
				"events":  len(c.Events),
			})
		}
	}

	s.place(c, b)

	b.changed = append(b.changed, c.ID)
	b.note(EventContextUpsert, observability.LevelVerbose, map[string]any{
		"id":        c.ID,
		"parent_id": c.ParentID,
		"created":   !exists,
		"status":    string(c.Status),
	})

	for i := range p.Children {
		s.upsert(&p.Children[i], c.ID, b)
	}
}

// place puts c into the root index or its parent's children, at most once.
func (s *Store) place(c *Context, b *batch) {
	if c.IsRoot() {
		if !s.isRoot[c.ID] {
			s.isRoot[c.ID] = true
			s.roots = append(s.roots, c)
		}
		return
	}

	if s.attached[c.ID] {
		return
	}

	parent, ok := s.all[c.ParentID]
	if !ok {
		if s.warned[c.ID] {
			return
		}
		s.warned[c.ID] = true
		b.note(EventContextOrphan, observability.LevelWarning, map[string]any{
			"id":        c.ID,
			"parent_id": c.ParentID,
		})
		return
	}

	if s.isAncestor(c.ID, parent) {
		b.note(EventContextCycle, observability.LevelWarning, map[string]any{
			"id":        c.ID,
			"parent_id": c.ParentID,
		})
		return
	}

	parent.Children = append(parent.Children, c)
	s.attached[c.ID] = true
}

// isAncestor reports whether id is from, or any attached ancestor of from.
func (s *Store) isAncestor(id string, from *Context) bool {
	for node := from; node != nil; {
		if node.ID == id {
			return true
		}
		if node.IsRoot() || !s.attached[node.ID] {
			return false
		}
		node = s.all[node.ParentID]
	}
	return false
}

func applyPayload(c *Context, p *protocol.ContextPayload, all bool) {
	has := func(field string) bool { return all || p.Has(field) }

	if has(protocol.FieldRootID) {
		c.RootID = p.RootID
	}
	if has(protocol.FieldToolID) {
		c.ToolID = p.ToolID
	}
	if has(protocol.FieldToolName) {
		c.ToolName = p.ToolName
	}
	if has(protocol.FieldStatus) {
		c.Status = Status(p.Status)
	}
	if has(protocol.FieldOutput) {
		c.Output = p.Output
	}
	if has(protocol.FieldError) {
		c.Error = p.Error
	}
	if has(protocol.FieldArgs) {
		c.Args = p.Args
	}
	if has(protocol.FieldCreatedAt) {
		c.CreatedAt = p.CreatedAt
	}
}

// AppendEvent records event in the history of the named context and applies
// its type-directed merge:
//
//   - context_update overwrites the listed fields that are in the mutable
//     field set; other keys are ignored
//   - tool_return sets Output and marks the context complete
//   - tool_exception sets Error and marks the context errored
//
// Other event types only extend the history. An unknown context id returns
// ErrUnknownContext and nothing is recorded. An update that does not decode
// is still recorded in the history, but none of its fields are applied.
func (s *Store) AppendEvent(ctx context.Context, contextID string, event protocol.Event) error {
	const source = "tree.AppendEvent"

	p, invalid := planEvent(event)

	s.mu.Lock()
	c, ok := s.all[contextID]
	if !ok {
		s.mu.Unlock()
		observability.Emit(ctx, s.observer, EventOrphanEvent, observability.LevelWarning, source, map[string]any{
			"context_id": contextID,
			"event_type": event.Type,
		})
		return fmt.Errorf("%w: %s", ErrUnknownContext, contextID)
	}

	c.Events = append(c.Events, event)
	if invalid == nil {
		p.apply(c)
	}
	status := c.Status
	count := len(c.Events)
	s.mu.Unlock()

	b := batch{changed: []string{contextID}}
	switch {
	case invalid != nil:
		b.note(EventInvalidEvent, observability.LevelWarning, map[string]any{
			"context_id": contextID,
			"event_type": event.Type,
			"error":      invalid.Error(),
		})
	case len(p.ignored) > 0:
		b.note(EventFieldsIgnored, observability.LevelVerbose, map[string]any{
			"context_id": contextID,
			"fields":     p.ignored,
		})
	}
	b.note(EventAppend, observability.LevelVerbose, map[string]any{
		"context_id": contextID,
		"event_type": event.Type,
		"events":     count,
		"status":     string(status),
	})
	s.flush(ctx, source, ChangeEvent, &b)
	return nil
}

// Reset discards every context, returning the store to its initial state.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	dropped := len(s.all)
	s.clear()
	s.mu.Unlock()

	observability.Emit(ctx, s.observer, EventReset, observability.LevelInfo, "tree.Reset", map[string]any{
		"dropped": dropped,
	})
	if s.onChange != nil {
		s.onChange(Change{Kind: ChangeReset})
	}
}

// Len returns the number of contexts recorded, attached or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// Orphans returns, in arrival order, the ids of contexts that name a parent
// but are not attached to one.
func (s *Store) Orphans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		c := s.all[id]
		if !c.IsRoot() && !s.attached[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
