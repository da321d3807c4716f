package main

import (
	"context"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/monitor/conn"
	"github.com/tailored-agentic-units/monitor/projector"
	"github.com/tailored-agentic-units/monitor/router"
	"github.com/tailored-agentic-units/monitor/tools"
	"github.com/tailored-agentic-units/monitor/tree"
)

func fixture(t *testing.T, frames ...string) (*projector.Projector, *tools.Catalog) {
	t.Helper()
	store := tree.New()
	catalog := tools.NewCatalog(nil)
	r := router.New(store, catalog, nil)
	for _, f := range frames {
		if err := r.Dispatch(context.Background(), []byte(f)); err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", f, err)
		}
	}
	return projector.New(store), catalog
}

func TestRender_Tree(t *testing.T) {
	p, catalog := fixture(t,
		`{"type": "tool", "data": {"id": "t1", "name": "websearch"}}`,
		`{"type": "context", "data": {"id": "A", "tool_id": "t1", "status": "running"}}`,
		`{"type": "context", "data": {"id": "B", "parent_id": "A", "tool_name": "summarize", "status": "running"}}`,
		`{"type": "context", "data": {"id": "C", "parent_id": "A", "tool_name": "rank", "status": "running"}}`,
		`{"type": "event", "context_id": "B", "data": {"type": "tool_return", "data": "short answer"}}`,
		`{"type": "event", "context_id": "C", "data": {"type": "tool_exception", "data": "rate limited"}}`,
	)

	out := renderer{theme: newTheme()}.render(view{
		state:     conn.StateConnected,
		projector: p,
		catalog:   catalog,
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	checks := []struct {
		line int
		want []string
	}{
		{line: 0, want: []string{"monitor", "connected", "running 1", "complete 1", "error 1"}},
		{line: 2, want: []string{"[running]", "websearch", "A"}},
		{line: 3, want: []string{"├─ ", "[complete]", "summarize", "→ short answer"}},
		{line: 4, want: []string{"└─ ", "[error]", "rank", "error: rate limited"}},
	}

	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), out)
	}
	for _, c := range checks {
		for _, w := range c.want {
			if !strings.Contains(lines[c.line], w) {
				t.Errorf("line %d %q missing %q", c.line, lines[c.line], w)
			}
		}
	}
}

func TestRender_ToolViewWithSearch(t *testing.T) {
	p, catalog := fixture(t,
		`{"type": "tool", "data": {"id": "t1", "name": "websearch", "description": "Search the web"}}`,
		`{"type": "context", "data": {"id": "old", "tool_id": "t1", "created_at": 100, "args": {"q": "golang"}}}`,
		`{"type": "context", "data": {"id": "new", "tool_id": "t1", "created_at": 200, "args": {"q": "rust"}}}`,
		`{"type": "context", "data": {"id": "newest", "tool_id": "t1", "created_at": 300, "args": {"q": "golang channels"}}}`,
	)

	out := renderer{theme: newTheme()}.render(view{
		state:     conn.StateDisconnected,
		exhausted: true,
		warnings:  3,
		queued:    7,
		capacity:  256,
		projector: p,
		catalog:   catalog,
		tool:      "t1",
		search:    "GOLANG",
	})

	if !strings.Contains(out, "retries exhausted") {
		t.Errorf("status line missing exhaustion:\n%s", out)
	}
	if !strings.Contains(out, "7/256 queued") {
		t.Errorf("status line missing backlog:\n%s", out)
	}
	if !strings.Contains(out, "3 warnings") {
		t.Errorf("status line missing warning count:\n%s", out)
	}
	if !strings.Contains(out, "tool websearch") || !strings.Contains(out, "Search the web") {
		t.Errorf("tool header missing:\n%s", out)
	}
	if strings.Contains(out, " new ") {
		t.Errorf("non-matching call rendered:\n%s", out)
	}
	newest, old := strings.Index(out, "newest"), strings.Index(out, " old ")
	if newest < 0 || old < 0 || newest > old {
		t.Errorf("want newest before old:\n%s", out)
	}
}

func TestRender_SearchKeepsMatchingDescendants(t *testing.T) {
	p, catalog := fixture(t,
		`{"type": "context", "data": {"id": "A", "tool_name": "plan", "args": {"goal": "trip"}}}`,
		`{"type": "context", "data": {"id": "B", "parent_id": "A", "tool_name": "lookup", "output": "Lisbon flights"}}`,
		`{"type": "context", "data": {"id": "C", "tool_name": "plan", "args": {"goal": "budget"}}}`,
	)

	out := renderer{theme: newTheme()}.render(view{projector: p, catalog: catalog, search: "lisbon"})

	if !strings.Contains(out, "Lisbon flights") {
		t.Errorf("matching child hidden:\n%s", out)
	}
	if strings.Contains(out, " C ") || strings.Contains(out, "budget") {
		t.Errorf("non-matching tree rendered:\n%s", out)
	}
}

func TestRender_Empty(t *testing.T) {
	p, catalog := fixture(t)

	out := renderer{theme: newTheme()}.render(view{projector: p, catalog: catalog})
	if !strings.Contains(out, "no contexts yet") {
		t.Errorf("got %q", out)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := []rune(preview(long)); len(got) != maxPreview {
		t.Errorf("got %d runes, want %d", len(got), maxPreview)
	}
	if got := preview("a\n  b\tc"); got != "a b c" {
		t.Errorf("got %q, want collapsed whitespace", got)
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	cfg, err := loadConfig(&options{addr: "ws://elsewhere:9100", maxAttempts: 2})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Conn.URL != "ws://elsewhere:9100" || cfg.Conn.MaxAttempts != 2 {
		t.Errorf("flags not applied: %+v", cfg.Conn)
	}
	if cfg.Conn.QueueSize != 256 {
		t.Errorf("got QueueSize %d, want default", cfg.Conn.QueueSize)
	}
}
