package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tailored-agentic-units/monitor/conn"
	"github.com/tailored-agentic-units/monitor/projector"
	"github.com/tailored-agentic-units/monitor/tools"
	"github.com/tailored-agentic-units/monitor/tree"
)

const maxPreview = 80

type theme struct {
	header    lipgloss.Style
	connected lipgloss.Style
	offline   lipgloss.Style
	running   lipgloss.Style
	complete  lipgloss.Style
	failed    lipgloss.Style
	muted     lipgloss.Style
	id        lipgloss.Style
}

func newTheme() theme {
	green := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	red := lipgloss.Color("#ff5f87")
	amber := lipgloss.Color("#ffd75f")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header:    lipgloss.NewStyle().Bold(true).Foreground(blue),
		connected: lipgloss.NewStyle().Foreground(green),
		offline:   lipgloss.NewStyle().Foreground(red),
		running:   lipgloss.NewStyle().Foreground(amber),
		complete:  lipgloss.NewStyle().Foreground(green),
		failed:    lipgloss.NewStyle().Foreground(red).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(muted),
		id:        lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

// view is everything one frame of output needs.
type view struct {
	state     conn.State
	exhausted bool
	warnings  int64
	queued    int
	capacity  int
	projector *projector.Projector
	catalog   *tools.Catalog
	tool      string // restrict to one tool, newest first
	search    string
}

type renderer struct {
	theme theme
}

func (r renderer) render(v view) string {
	var b strings.Builder

	b.WriteString(r.status(v))
	b.WriteString("\n\n")

	if v.tool != "" {
		r.toolView(&b, v)
		return b.String()
	}

	roots := projector.SearchTree(v.projector.RootContexts(), v.search)
	if len(roots) == 0 {
		b.WriteString(r.theme.muted.Render("no contexts yet"))
		b.WriteString("\n")
		return b.String()
	}
	for _, root := range roots {
		r.node(&b, v.catalog, root, "", "")
	}
	return b.String()
}

func (r renderer) status(v view) string {
	state := v.state.String()
	if v.exhausted {
		state += " (retries exhausted)"
	}
	style := r.theme.offline
	if v.state == conn.StateConnected {
		style = r.theme.connected
	}

	counts := v.projector.StatusCounts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	parts := []string{r.theme.header.Render("monitor"), style.Render("● " + state)}
	for _, s := range statuses {
		label := s
		if label == "" {
			label = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s %d", r.styleFor(tree.Status(s)).Render(label), counts[tree.Status(s)]))
	}
	if v.queued > 0 {
		parts = append(parts, r.theme.muted.Render(fmt.Sprintf("%d/%d queued", v.queued, v.capacity)))
	}
	if v.warnings > 0 {
		parts = append(parts, r.theme.failed.Render(fmt.Sprintf("%d warnings", v.warnings)))
	}
	return strings.Join(parts, "  ")
}

func (r renderer) node(b *strings.Builder, catalog *tools.Catalog, c *tree.Context, prefix, branch string) {
	b.WriteString(prefix)
	b.WriteString(branch)
	b.WriteString(r.line(catalog, c))
	b.WriteString("\n")

	childPrefix := prefix
	switch branch {
	case "├─ ":
		childPrefix += "│  "
	case "└─ ":
		childPrefix += "   "
	}

	for i, child := range c.Children {
		next := "├─ "
		if i == len(c.Children)-1 {
			next = "└─ "
		}
		r.node(b, catalog, child, childPrefix, next)
	}
}

func (r renderer) line(catalog *tools.Catalog, c *tree.Context) string {
	name := c.ToolName
	if name == "" && c.ToolID != "" {
		name = catalog.Name(c.ToolID)
	}
	if name == "" {
		name = "context"
	}

	parts := []string{
		r.styleFor(c.Status).Render(fmt.Sprintf("[%s]", statusLabel(c.Status))),
		name,
		r.theme.id.Render(c.ID),
	}
	if !c.Created().IsZero() {
		parts = append(parts, r.theme.muted.Render(c.Created().Format("15:04:05")))
	}
	if len(c.Events) > 0 {
		parts = append(parts, r.theme.muted.Render(fmt.Sprintf("%d events", len(c.Events))))
	}

	switch {
	case len(c.Error) > 0:
		parts = append(parts, r.theme.failed.Render("error: "+preview(c.ErrorText())))
	case len(c.Output) > 0:
		parts = append(parts, "→ "+preview(c.OutputText()))
	}
	return strings.Join(parts, " ")
}

func (r renderer) toolView(b *strings.Builder, v view) {
	name := v.catalog.Name(v.tool)
	b.WriteString(r.theme.header.Render("tool " + name))
	if t, ok := v.catalog.Get(v.tool); ok && t.Description != "" {
		b.WriteString(" ")
		b.WriteString(r.theme.muted.Render(t.Description))
	}
	b.WriteString("\n")

	contexts := projector.Search(v.projector.ContextsForTool(v.tool), v.search)
	if len(contexts) == 0 {
		b.WriteString(r.theme.muted.Render("no matching calls"))
		b.WriteString("\n")
		return
	}
	for _, c := range contexts {
		b.WriteString("  ")
		b.WriteString(r.line(v.catalog, c))
		if len(c.Args) > 0 {
			b.WriteString(" ")
			b.WriteString(r.theme.muted.Render("args " + preview(string(c.Args))))
		}
		b.WriteString("\n")
	}
}

func (r renderer) styleFor(s tree.Status) lipgloss.Style {
	switch s {
	case tree.StatusRunning:
		return r.theme.running
	case tree.StatusComplete:
		return r.theme.complete
	case tree.StatusError:
		return r.theme.failed
	default:
		return r.theme.muted
	}
}

func statusLabel(s tree.Status) string {
	if s == "" {
		return "?"
	}
	return string(s)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) > maxPreview {
		return string([]rune(s)[:maxPreview-1]) + "…"
	}
	return s
}
