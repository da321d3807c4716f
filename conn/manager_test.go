package conn_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/monitor/conn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRefused = errors.New("connection refused")

type fakeTransport struct {
	frames chan []byte
	fail   chan error
	done   chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 16),
		fail:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (t *fakeTransport) Read() ([]byte, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case err := <-t.fail:
		return nil, err
	case <-t.done:
		return nil, errors.New("use of closed network connection")
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// fakeDialer hands out transports in order; once they run out every dial
// is refused.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      int
}

func (d *fakeDialer) push(results ...*fakeTransport) {
	d.mu.Lock()
	d.transports = append(d.transports, results...)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (conn.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.transports) == 0 {
		return nil, errRefused
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	if t == nil {
		return nil, errRefused
	}
	return t, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recordingScheduler never fires on its own; tests call fire.
type recordingScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
	calls   []func()
	stopped int
}

func (s *recordingScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.pending = append(s.pending, fn)
	s.calls = append(s.calls, fn)
	idx := len(s.pending) - 1
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending[idx] == nil {
			return false
		}
		s.pending[idx] = nil
		s.stopped++
		return true
	}
}

func (s *recordingScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var fn func()
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i] != nil {
			fn = s.pending[i]
			s.pending[i] = nil
			break
		}
	}
	s.mu.Unlock()
	if fn == nil {
		t.Fatal("no retry pending")
	}
	fn()
}

func (s *recordingScheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *recordingScheduler) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.pending {
		if fn != nil {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConfig(maxAttempts int) *conn.Config {
	cfg := conn.DefaultConfig()
	cfg.URL = "ws://producer.test"
	cfg.MaxAttempts = maxAttempts
	cfg.BaseDelay = time.Second
	return &cfg
}

func newManager(cfg *conn.Config) (*conn.Manager, *fakeDialer, *recordingScheduler) {
	d := &fakeDialer{}
	s := &recordingScheduler{}
	return conn.New(cfg, conn.WithDialer(d), conn.WithScheduler(s)), d, s
}

func TestManager_BackoffResetsAfterOpen(t *testing.T) {
	m, d, s := newManager(testConfig(5))
	defer m.Close()

	live := newFakeTransport()
	d.push(nil, nil, live)

	if err := m.Connect(context.Background()); !errors.Is(err, errRefused) {
		t.Fatalf("Connect error = %v, want %v", err, errRefused)
	}
	s.fire(t)
	s.fire(t)

	if m.State() != conn.StateConnected {
		t.Fatalf("got state %s, want connected", m.State())
	}
	if m.Attempts() != 0 {
		t.Errorf("got %d attempts after open, want 0", m.Attempts())
	}

	live.fail <- errors.New("connection reset by peer")
	waitFor(t, "retry after loss", func() bool { return len(s.recorded()) == 3 })

	want := []time.Duration{time.Second, 2 * time.Second, time.Second}
	if diff := cmp.Diff(want, s.recorded()); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Exhaustion(t *testing.T) {
	m, d, s := newManager(testConfig(5))
	defer m.Close()

	_ = m.Connect(context.Background())
	for range 5 {
		s.fire(t)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second}
	if diff := cmp.Diff(want, s.recorded()); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
	if !m.Exhausted() {
		t.Error("expected exhausted after five failed retries")
	}
	if s.hasPending() {
		t.Error("retry scheduled after exhaustion")
	}
	if m.State() != conn.StateDisconnected {
		t.Errorf("got state %s, want disconnected", m.State())
	}
	if d.count() != 6 {
		t.Errorf("got %d dials, want 6", d.count())
	}
	if err := m.Connect(context.Background()); !errors.Is(err, conn.ErrExhausted) {
		t.Errorf("Connect after exhaustion = %v, want ErrExhausted", err)
	}
}

func TestManager_CloseCancelsRetry(t *testing.T) {
	m, d, s := newManager(testConfig(5))

	_ = m.Connect(context.Background())
	if !s.hasPending() {
		t.Fatal("expected a pending retry")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.hasPending() || s.stopped != 1 {
		t.Errorf("pending retry not cancelled (stopped=%d)", s.stopped)
	}

	// A timer that already fired must not dial either.
	s.calls[0]()
	if d.count() != 1 {
		t.Errorf("got %d dials, want 1", d.count())
	}
	if err := m.Connect(context.Background()); !errors.Is(err, conn.ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}

func TestManager_ReconnectClearsExhaustion(t *testing.T) {
	m, d, s := newManager(testConfig(1))
	defer m.Close()

	_ = m.Connect(context.Background())
	s.fire(t)
	if !m.Exhausted() {
		t.Fatal("expected exhausted")
	}

	d.push(newFakeTransport())
	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if m.Exhausted() || m.State() != conn.StateConnected {
		t.Errorf("got exhausted=%v state=%s, want false connected", m.Exhausted(), m.State())
	}
}

func TestManager_ReconnectCancelsPendingRetry(t *testing.T) {
	m, d, s := newManager(testConfig(5))
	defer m.Close()

	_ = m.Connect(context.Background())
	d.push(newFakeTransport())

	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if s.hasPending() {
		t.Error("retry still pending after Reconnect")
	}

	s.calls[0]()
	if d.count() != 2 {
		t.Errorf("got %d dials, want 2", d.count())
	}
}

func TestManager_FramesInOrder(t *testing.T) {
	m, d, _ := newManager(testConfig(5))
	defer m.Close()

	live := newFakeTransport()
	d.push(live)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sent := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for _, f := range sent {
		live.frames <- []byte(f)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []string
	for range sent {
		frame, err := m.Frames().Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		got = append(got, string(frame))
	}
	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_StateTransitions(t *testing.T) {
	m, d, _ := newManager(testConfig(5))

	var mu sync.Mutex
	var states []string
	m.OnStateChange(func(s conn.State) {
		mu.Lock()
		states = append(states, s.String())
		mu.Unlock()
	})

	live := newFakeTransport()
	d.push(live)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	live.fail <- errors.New("read: connection reset")
	waitFor(t, "loss handled", func() bool { return m.Attempts() == 1 })
	_ = m.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"connecting", "connected", "error", "disconnected"}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_OrderlyCloseSkipsErrorState(t *testing.T) {
	m, d, s := newManager(testConfig(5))
	defer m.Close()

	var mu sync.Mutex
	var sawError bool
	m.OnStateChange(func(st conn.State) {
		mu.Lock()
		sawError = sawError || st == conn.StateError
		mu.Unlock()
	})

	live := newFakeTransport()
	d.push(live)
	_ = m.Connect(context.Background())

	live.fail <- &websocket.CloseError{Code: websocket.CloseNormalClosure}
	waitFor(t, "retry after close", s.hasPending)

	mu.Lock()
	defer mu.Unlock()
	if sawError {
		t.Error("orderly close reported error state")
	}
}

func TestManager_WebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"type":"context","data":{"id":"a"}}`,
		`{"type":"event","context_id":"a","data":{"type":"tool_return","data":1}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	defer srv.Close()

	cfg := testConfig(5)
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	s := &recordingScheduler{}
	m := conn.New(cfg, conn.WithScheduler(s))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range frames {
		got, err := m.Frames().Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("got frame %s, want %s", got, want)
		}
	}

	waitFor(t, "retry after server close", s.hasPending)
	if diff := cmp.Diff([]time.Duration{time.Second}, s.recorded()); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	m, _, _ := newManager(testConfig(5))
	if err := m.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if !m.Frames().IsClosed() {
		t.Error("frame queue left open")
	}
}
