package observability

import "context"

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// Func adapts an ordinary function to the Observer interface.
type Func func(ctx context.Context, event Event)

func (f Func) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}
