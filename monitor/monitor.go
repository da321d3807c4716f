// Package monitor runs the dashboard core: it connects to the producer,
// feeds every received frame through the router into the session's context
// tree, and serves read projections to renderers.
//
// The monitor initializes from configuration via New. Functional options
// allow test overrides of the transport, retry scheduler and observer.
//
//	m, err := monitor.New(&cfg, monitor.WithChangeListener(redraw))
//	err = m.Run(ctx)
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tailored-agentic-units/monitor/conn"
	"github.com/tailored-agentic-units/monitor/observability"
	"github.com/tailored-agentic-units/monitor/projector"
	"github.com/tailored-agentic-units/monitor/router"
	"github.com/tailored-agentic-units/monitor/session"
	"github.com/tailored-agentic-units/monitor/tree"
)

// Option configures a Monitor before its subsystems are built.
type Option func(*Monitor)

// WithDialer overrides the WebSocket dialer.
func WithDialer(d conn.Dialer) Option {
	return func(m *Monitor) { m.dialer = d }
}

// WithScheduler overrides the retry timer.
func WithScheduler(s conn.Scheduler) Option {
	return func(m *Monitor) { m.scheduler = s }
}

// WithObserver overrides the observer named in the config.
func WithObserver(o observability.Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithChangeListener registers fn for every tree mutation. It runs on the
// processing goroutine and must not block; renderers should only signal
// themselves from it.
func WithChangeListener(fn func(tree.Change)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// WithStateListener registers fn for connection state transitions.
func WithStateListener(fn func(conn.State)) Option {
	return func(m *Monitor) { m.onState = fn }
}

// Monitor owns one session and the connection feeding it.
type Monitor struct {
	session   *session.Session
	conn      *conn.Manager
	router    *router.Router
	projector *projector.Projector
	observer  observability.Observer

	dialer    conn.Dialer
	scheduler conn.Scheduler
	onChange  func(tree.Change)
	onState   func(conn.State)

	control chan func(context.Context)
	quit    chan struct{}
	running atomic.Bool
	started atomic.Bool
}

// New creates a Monitor from configuration. The observer is resolved by name
// from the observability registry unless WithObserver is given.
func New(cfg *Config, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		control: make(chan func(context.Context)),
		quit:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.observer == nil {
		obs, err := observability.NewRegistry(slog.Default()).Get(cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observer: %w", err)
		}
		m.observer = obs
	}

	sessionOpts := []session.Option{session.WithObserver(m.observer)}
	if m.onChange != nil {
		sessionOpts = append(sessionOpts, session.WithChangeListener(m.onChange))
	}
	m.session = session.New(sessionOpts...)

	connOpts := []conn.Option{conn.WithObserver(m.observer)}
	if m.dialer != nil {
		connOpts = append(connOpts, conn.WithDialer(m.dialer))
	}
	if m.scheduler != nil {
		connOpts = append(connOpts, conn.WithScheduler(m.scheduler))
	}
	m.conn = conn.New(&cfg.Conn, connOpts...)
	if m.onState != nil {
		m.conn.OnStateChange(m.onState)
	}

	m.router = router.New(m.session.Store(), m.session.Catalog(), m.observer)
	m.projector = projector.New(m.session.Store())

	return m, nil
}

// Run connects and processes frames until ctx is cancelled, then closes the
// connection, applies the frames already received and returns nil. A failed
// first connection is not fatal; the retry policy takes over. Run may be
// called once.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.running.Store(true)
	defer func() {
		m.running.Store(false)
		close(m.quit)
	}()

	observability.Emit(ctx, m.observer, EventRunStart, observability.LevelInfo, "monitor.Run", map[string]any{
		"session": m.session.ID(),
	})

	if err := m.conn.Connect(ctx); err != nil {
		observability.Emit(ctx, m.observer, EventConnectError, observability.LevelWarning, "monitor.Run", map[string]any{
			"error":     err.Error(),
			"exhausted": m.conn.Exhausted(),
		})
	}

	frames := m.conn.Frames().Chan()
	for {
		select {
		case <-ctx.Done():
			return m.shutdown(context.WithoutCancel(ctx))
		case req := <-m.control:
			req(ctx)
		case frame, ok := <-frames:
			if !ok {
				return m.shutdown(context.WithoutCancel(ctx))
			}
			_ = m.router.Dispatch(ctx, frame)
		}
	}
}

// shutdown stops the connection and applies whatever it had queued.
func (m *Monitor) shutdown(ctx context.Context) error {
	_ = m.conn.Close()

	drained := 0
	for frame := range m.conn.Frames().Chan() {
		_ = m.router.Dispatch(ctx, frame)
		drained++
	}

	observability.Emit(ctx, m.observer, EventDrain, observability.LevelVerbose, "monitor.Run", map[string]any{
		"frames": drained,
	})
	observability.Emit(ctx, m.observer, EventRunComplete, observability.LevelInfo, "monitor.Run", map[string]any{
		"session":  m.session.ID(),
		"contexts": m.session.Store().Len(),
		"metrics":  m.router.Metrics(),
	})
	return nil
}

// Reset empties the session. The request is executed by the processing
// loop between frames, so it never interleaves with a mutation.
func (m *Monitor) Reset(ctx context.Context) error {
	if !m.running.Load() {
		return ErrNotRunning
	}

	done := make(chan struct{})
	req := func(ctx context.Context) {
		m.session.Reset(ctx)
		close(done)
	}

	select {
	case m.control <- req:
	case <-m.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

// Reconnect restarts the connection with a fresh retry budget.
func (m *Monitor) Reconnect(ctx context.Context) error {
	return m.conn.Reconnect(ctx)
}

// State returns the connection state.
func (m *Monitor) State() conn.State {
	return m.conn.State()
}

// Exhausted reports whether the connection gave up retrying.
func (m *Monitor) Exhausted() bool {
	return m.conn.Exhausted()
}

// Backlog reports how many received frames wait for processing, and the
// queue capacity at which the connection reader blocks.
func (m *Monitor) Backlog() (queued, capacity int) {
	q := m.conn.Frames()
	return q.Len(), q.Size()
}

// Session returns the session being populated.
func (m *Monitor) Session() *session.Session {
	return m.session
}

// Store returns the read side of the context tree.
func (m *Monitor) Store() tree.Reader {
	return m.session.Store()
}

// Projector returns the view builder over the context tree.
func (m *Monitor) Projector() *projector.Projector {
	return m.projector
}

// Metrics returns the router's dispatch counters.
func (m *Monitor) Metrics() router.MetricsSnapshot {
	return m.router.Metrics()
}
