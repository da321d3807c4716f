// Package conn maintains the single logical stream from the producer. It
// dials, pushes received frames onto a bounded Queue in arrival order, and
// after an unexpected loss retries with linearly increasing delays until a
// fixed budget of consecutive failures is spent.
//
//	m := conn.New(&cfg, conn.WithObserver(obs))
//	if err := m.Connect(ctx); err != nil { ... }
//	frame, err := m.Frames().Receive(ctx)
package conn

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/monitor/observability"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler replaces the time.AfterFunc retry scheduler. The scheduler
// must not invoke fn synchronously.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithObserver sets the observer for connection events.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager owns the connection and its retry policy.
type Manager struct {
	cfg       Config
	dialer    Dialer
	scheduler Scheduler
	observer  observability.Observer
	queue     *Queue

	// base is cancelled by Close; it bounds retry dials and queue sends.
	base   context.Context
	cancel context.CancelFunc

	// dialMu serializes Connect, Reconnect and retries.
	dialMu sync.Mutex

	mu         sync.Mutex
	state      State
	transport  Transport
	generation uint64
	attempts   int
	exhausted  bool
	closed     bool
	retryToken uint64
	stopRetry  func() bool
	onState    func(State)

	readers sync.WaitGroup
}

// New creates a Manager from cfg. Nothing is dialed until Connect.
func New(cfg *Config, opts ...Option) *Manager {
	base, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:       *cfg,
		dialer:    NewWebSocketDialer(cfg),
		scheduler: timerScheduler{},
		observer:  observability.NoOpObserver{},
		queue:     NewQueue(cfg.QueueSize),
		base:      base,
		cancel:    cancel,
		state:     StateDisconnected,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Frames returns the queue received frames are pushed onto. It is closed
// once Close has stopped every reader.
func (m *Manager) Frames() *Queue {
	return m.queue
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Exhausted reports whether the retry budget is spent. Only Reconnect
// leaves this state.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// Attempts returns the number of consecutive failures so far.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// OnStateChange sets the function called on every state transition. It runs
// without locks held, on whichever goroutine caused the transition.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// Connect dials the configured URL. A dial failure counts against the retry
// budget like any other loss, so a retry is scheduled before Connect returns
// the error. Connecting while already connected is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.exhausted:
		m.mu.Unlock()
		return ErrExhausted
	case m.transport != nil:
		m.mu.Unlock()
		return nil
	}
	m.cancelRetryLocked()
	m.mu.Unlock()

	return m.dial(ctx)
}

// Reconnect restarts the sequence: the pending retry is cancelled, the
// failure counter and exhaustion flag are cleared, the current transport is
// dropped and a fresh dial is made.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cancelRetryLocked()
	m.attempts = 0
	m.exhausted = false
	old := m.transport
	m.transport = nil
	m.generation++
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return m.dial(ctx)
}

// Close shuts the manager down. The pending retry is cancelled so no dial
// happens afterwards, the transport is closed, readers are waited for and
// the frame queue is closed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelRetryLocked()
	t := m.transport
	m.transport = nil
	m.generation++
	m.mu.Unlock()

	m.cancel()
	var err error
	if t != nil {
		err = t.Close()
	}
	m.readers.Wait()
	m.queue.Close()

	m.setState(StateDisconnected)
	return err
}

// dial runs with dialMu held.
func (m *Manager) dial(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.base, cancel)
	defer stop()

	m.setState(StateConnecting)

	t, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		observability.Emit(ctx, m.observer, EventDialError, observability.LevelWarning, "conn.Dial", map[string]any{
			"url":   m.cfg.URL,
			"error": err.Error(),
		})
		m.setState(StateError)
		m.fail()
		return fmt.Errorf("connect %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close()
		return ErrClosed
	}
	m.generation++
	gen := m.generation
	m.transport = t
	m.attempts = 0
	m.exhausted = false
	m.readers.Add(1)
	m.mu.Unlock()

	m.setState(StateConnected)
	go m.read(t, gen)
	return nil
}

func (m *Manager) read(t Transport, gen uint64) {
	defer m.readers.Done()

	for {
		frame, err := t.Read()
		if err != nil {
			m.lost(gen, err)
			return
		}
		if err := m.queue.Send(m.base, frame); err != nil {
			return
		}
	}
}

// lost handles the end of a transport. Ends caused by Close or Reconnect
// carry a stale generation and are ignored.
func (m *Manager) lost(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}

	orderly := peerClosed(err)
	level := observability.LevelWarning
	if orderly {
		level = observability.LevelInfo
	}
	observability.Emit(m.base, m.observer, EventLost, level, "conn.Manager", map[string]any{
		"error":   err.Error(),
		"orderly": orderly,
	})

	if !orderly {
		m.setState(StateError)
	}
	m.fail()
}

// fail counts a failure and either schedules the next retry or, with the
// budget spent, settles in the terminal disconnected state.
func (m *Manager) fail() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxAttempts {
		m.exhausted = true
		attempts := m.attempts
		m.mu.Unlock()

		observability.Emit(m.base, m.observer, EventRetryExhausted, observability.LevelWarning, "conn.Manager", map[string]any{
			"attempts": attempts,
		})
		m.setState(StateDisconnected)
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.cfg.Delay(attempt)
	m.retryToken++
	token := m.retryToken
	m.stopRetry = m.scheduler.AfterFunc(delay, func() { m.retry(token) })
	m.mu.Unlock()

	observability.Emit(m.base, m.observer, EventRetryScheduled, observability.LevelInfo, "conn.Manager", map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	})
	m.setState(StateDisconnected)
}

func (m *Manager) retry(token uint64) {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	if m.closed || token != m.retryToken {
		m.mu.Unlock()
		return
	}
	m.stopRetry = nil
	attempt := m.attempts
	m.readers.Add(1)
	m.mu.Unlock()
	defer m.readers.Done()

	observability.Emit(m.base, m.observer, EventRetryAttempt, observability.LevelInfo, "conn.Manager", map[string]any{
		"attempt": attempt,
	})
	_ = m.dial(m.base)
}

func (m *Manager) cancelRetryLocked() {
	m.retryToken++
	if m.stopRetry == nil {
		return
	}
	stopped := m.stopRetry()
	m.stopRetry = nil
	if stopped {
		observability.Emit(m.base, m.observer, EventRetryCancelled, observability.LevelVerbose, "conn.Manager", nil)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s || (m.closed && s != StateDisconnected) {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = s
	cb := m.onState
	m.mu.Unlock()

	observability.Emit(m.base, m.observer, EventState, observability.LevelInfo, "conn.Manager", map[string]any{
		"from": prev.String(),
		"to":   s.String(),
	})
	if cb != nil {
		cb(s)
	}
}
