package session_test

import (
	"context"
	"testing"

	"github.com/tailored-agentic-units/monitor/core/protocol"
	"github.com/tailored-agentic-units/monitor/observability"
	"github.com/tailored-agentic-units/monitor/session"
	"github.com/tailored-agentic-units/monitor/tree"
)

func TestNew(t *testing.T) {
	s := session.New()

	if s.ID() == "" {
		t.Error("session ID should not be empty")
	}
	if s.Store().Len() != 0 {
		t.Errorf("new session should have 0 contexts, got %d", s.Store().Len())
	}
	if s.Catalog().Len() != 0 {
		t.Errorf("new session should have 0 tools, got %d", s.Catalog().Len())
	}
	if s.Started().IsZero() {
		t.Error("start time not set")
	}
}

func TestSession_ID_Unique(t *testing.T) {
	s1 := session.New()
	s2 := session.New()

	if s1.ID() == s2.ID() {
		t.Errorf("two sessions should have different IDs, both got %q", s1.ID())
	}
}

func TestSession_Reset(t *testing.T) {
	var events []observability.Event
	obs := observability.Func(func(_ context.Context, e observability.Event) {
		events = append(events, e)
	})

	var changes []tree.Change
	s := session.New(
		session.WithObserver(obs),
		session.WithChangeListener(func(c tree.Change) { changes = append(changes, c) }),
	)
	ctx := context.Background()

	p := protocol.ContextPayload{ID: "a"}
	p.Set(protocol.FieldID)
	if err := s.Store().UpsertContext(ctx, p); err != nil {
		t.Fatalf("UpsertContext failed: %v", err)
	}
	if err := s.Catalog().Register(ctx, protocol.Tool{ID: "t1", Name: "search"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	before := s.ID()
	s.Reset(ctx)

	if s.ID() == before {
		t.Error("Reset kept the session ID")
	}
	if s.Store().Len() != 0 {
		t.Errorf("got %d contexts after Reset, want 0", s.Store().Len())
	}
	if s.Catalog().Len() != 1 {
		t.Errorf("got %d tools after Reset, want 1", s.Catalog().Len())
	}

	if len(changes) != 2 || changes[1].Kind != tree.ChangeReset {
		t.Errorf("got changes %+v, want upsert then reset", changes)
	}

	var sawReset bool
	for _, e := range events {
		if e.Type == session.EventReset {
			sawReset = e.Data["previous"] == before
		}
	}
	if !sawReset {
		t.Error("reset event missing or without previous id")
	}
}
