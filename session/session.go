// Package session groups the state one dashboard run accumulates: the
// context tree and the tool catalog. A session lives across reconnects and
// is emptied on demand with Reset.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/monitor/observability"
	"github.com/tailored-agentic-units/monitor/tools"
	"github.com/tailored-agentic-units/monitor/tree"
)

// EventReset is emitted after a session is emptied.
const EventReset observability.EventType = "session.reset"

// Option configures a Session.
type Option func(*options)

type options struct {
	observer observability.Observer
	onChange func(tree.Change)
}

// WithObserver sets the observer shared by the session's store and catalog.
func WithObserver(o observability.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithChangeListener registers fn with the session's store.
func WithChangeListener(fn func(tree.Change)) Option {
	return func(opts *options) { opts.onChange = fn }
}

// Session owns one context store and one tool catalog.
type Session struct {
	store    *tree.Store
	catalog  *tools.Catalog
	observer observability.Observer

	mu      sync.RWMutex
	id      string
	started time.Time
}

// New creates an empty session with a UUIDv7 identifier.
func New(opts ...Option) *Session {
	o := options{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []tree.Option{tree.WithObserver(o.observer)}
	if o.onChange != nil {
		storeOpts = append(storeOpts, tree.WithChangeListener(o.onChange))
	}

	return &Session{
		store:    tree.New(storeOpts...),
		catalog:  tools.NewCatalog(o.observer),
		observer: o.observer,
		id:       newID(),
		started:  time.Now(),
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ID returns the session identifier. It changes on Reset.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Started returns when the session, or its latest reset, began.
func (s *Session) Started() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Store returns the context tree. Only the processing loop may write to it.
func (s *Session) Store() *tree.Store {
	return s.store
}

// Catalog returns the tool catalog.
func (s *Session) Catalog() *tools.Catalog {
	return s.catalog
}

// Reset discards every context and starts a new session id. Tool
// descriptors describe the producer rather than a run and are kept.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	prev := s.id
	s.id = newID()
	s.started = time.Now()
	next := s.id
	s.mu.Unlock()

	s.store.Reset(ctx)

	observability.Emit(ctx, s.observer, EventReset, observability.LevelInfo, "session.Reset", map[string]any{
		"previous": prev,
		"session":  next,
	})
}
