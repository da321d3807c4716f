// Package projector derives the read-only views a renderer needs from the
// context tree. Every projection works on a fresh snapshot and never
// touches the store itself.
package projector

import (
	"bytes"
	"cmp"
	"encoding/json"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/monitor/tree"
)

// Source supplies snapshots. tree.Store implements it.
type Source interface {
	Snapshot() tree.Snapshot
}

// Projector computes views over a Source.
type Projector struct {
	source Source
}

func New(source Source) *Projector {
	return &Projector{source: source}
}

// RootContexts returns the root-level contexts in insertion order, each with
// its attached descendants.
func (p *Projector) RootContexts() []*tree.Context {
	return p.source.Snapshot().Roots
}

// ContextsForTool returns every context that ran toolID, newest first by
// created_at. Contexts without a timestamp sort last; ties keep arrival
// order.
func (p *Projector) ContextsForTool(toolID string) []*tree.Context {
	var out []*tree.Context
	for _, c := range p.source.Snapshot().Contexts {
		if c.ToolID == toolID {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b *tree.Context) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return out
}

// StatusCounts returns the number of contexts in each status. Contexts with
// no status are counted under the empty key.
func (p *Projector) StatusCounts() map[tree.Status]int {
	counts := make(map[tree.Status]int)
	for _, c := range p.source.Snapshot().Contexts {
		counts[c.Status]++
	}
	return counts
}

// Search keeps the contexts whose arguments, output or error contain query,
// ignoring case. Arguments and non-string outputs are matched in their
// compact JSON form; string outputs and errors as plain text. A blank query
// returns contexts unchanged.
func Search(contexts []*tree.Context, query string) []*tree.Context {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return contexts
	}

	var out []*tree.Context
	for _, c := range contexts {
		if matches(c, query) {
			out = append(out, c)
		}
	}
	return out
}

// SearchTree keeps the roots whose subtree holds at least one context
// matching query, so a matching call stays visible under the root that
// spawned it. A blank query returns roots unchanged.
func SearchTree(roots []*tree.Context, query string) []*tree.Context {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return roots
	}

	var out []*tree.Context
	for _, r := range roots {
		if subtreeMatches(r, query) {
			out = append(out, r)
		}
	}
	return out
}

func subtreeMatches(c *tree.Context, query string) bool {
	if matches(c, query) {
		return true
	}
	for _, child := range c.Children {
		if subtreeMatches(child, query) {
			return true
		}
	}
	return false
}

func matches(c *tree.Context, query string) bool {
	fields := []string{
		compact(c.Args),
		text(c.Output),
		text(c.Error),
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// text unquotes a JSON string and compacts anything else.
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return compact(raw)
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
