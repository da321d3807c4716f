package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/monitor/conn"
	"github.com/tailored-agentic-units/monitor/monitor"
	"github.com/tailored-agentic-units/monitor/observability"
	"github.com/tailored-agentic-units/monitor/tree"
)

const clearScreen = "\x1b[H\x1b[2J"

type options struct {
	addr        string
	configFile  string
	maxAttempts int
	baseDelay   time.Duration
	tool        string
	search      string
	verbose     bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live view of agent execution contexts",
		Long: `monitor connects to an agent producer's WebSocket stream and keeps the
tree of execution contexts it reports, redrawing on every change.

Send SIGHUP to start a fresh session and reconnect, for example after the
retry budget is exhausted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "", "Producer WebSocket URL (overrides config)")
	flags.StringVar(&opts.configFile, "config", "", "Path to monitor config YAML or JSON file")
	flags.IntVar(&opts.maxAttempts, "max-attempts", 0, "Consecutive reconnect attempts before giving up (overrides config)")
	flags.DurationVar(&opts.baseDelay, "base-delay", 0, "Delay step between reconnect attempts (overrides config)")
	flags.StringVar(&opts.tool, "tool", "", "Show only calls of this tool id, newest first")
	flags.StringVar(&opts.search, "search", "", "Show only trees holding a context whose arguments, output or error contain this text")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging to stderr")

	return cmd
}

func loadConfig(opts *options) (*monitor.Config, error) {
	cfg := monitor.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := monitor.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	cfg.Merge(&monitor.Config{
		Conn: conn.Config{
			URL:         opts.addr,
			MaxAttempts: opts.maxAttempts,
			BaseDelay:   opts.baseDelay,
		},
	})
	return &cfg, nil
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	redraw := make(chan struct{}, 1)
	signalRedraw := func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	}

	logged, err := observability.NewRegistry(slog.Default()).Get(cfg.Observer)
	if err != nil {
		return fmt.Errorf("failed to resolve observer: %w", err)
	}

	var warnings atomic.Int64
	observer := observability.NewMultiObserver(logged, observability.Func(func(_ context.Context, e observability.Event) {
		if e.Level >= observability.LevelWarning {
			warnings.Add(1)
			signalRedraw()
		}
	}))

	mon, err := monitor.New(cfg,
		monitor.WithObserver(observer),
		monitor.WithChangeListener(func(tree.Change) { signalRedraw() }),
		monitor.WithStateListener(func(conn.State) { signalRedraw() }),
	)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				if err := mon.Reset(ctx); err != nil {
					slog.Warn("reset failed", "error", err)
				}
				if err := mon.Reconnect(ctx); err != nil {
					slog.Warn("reconnect failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		draw := newDrawer(out, opts, &warnings)
		draw(mon)
		for {
			select {
			case <-ctx.Done():
				draw(mon)
				return nil
			case <-redraw:
				draw(mon)
			}
		}
	})

	return g.Wait()
}

// newDrawer returns a function writing one full frame of output. On a
// terminal each frame replaces the previous one.
func newDrawer(out io.Writer, opts *options, warnings *atomic.Int64) func(*monitor.Monitor) {
	r := renderer{theme: newTheme()}

	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}

	return func(mon *monitor.Monitor) {
		queued, capacity := mon.Backlog()
		frame := r.render(view{
			state:     mon.State(),
			exhausted: mon.Exhausted(),
			warnings:  warnings.Load(),
			queued:    queued,
			capacity:  capacity,
			projector: mon.Projector(),
			catalog:   mon.Session().Catalog(),
			tool:      opts.tool,
			search:    opts.search,
		})
		if tty {
			frame = clearScreen + frame
		}
		fmt.Fprint(out, frame)
	}
}
