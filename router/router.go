// Package router classifies decoded frames by type and hands each to the
// component that owns it: contexts and events to the tree store, tool
// descriptors to the tool catalog. A bad frame is logged and dropped; it
// never stops the stream.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/monitor/core/protocol"
	"github.com/tailored-agentic-units/monitor/observability"
	"github.com/tailored-agentic-units/monitor/tree"
)

// HandlerFunc processes one envelope of a given type.
type HandlerFunc func(ctx context.Context, env *protocol.Envelope) error

// ToolSink receives tool descriptors. tools.Catalog implements it.
type ToolSink interface {
	Register(ctx context.Context, tool protocol.Tool) error
}

// Router dispatches frames. It is not safe for concurrent Dispatch calls;
// frames are processed one at a time, in arrival order.
type Router struct {
	handlers map[protocol.MessageType]HandlerFunc
	observer observability.Observer
	metrics  Metrics
}

// New creates a Router that applies context and event frames to store and
// forwards tool frames to sink. A nil sink only logs tool frames.
func New(store tree.Writer, sink ToolSink, observer observability.Observer) *Router {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	r := &Router{
		handlers: make(map[protocol.MessageType]HandlerFunc),
		observer: observer,
	}

	r.Handle(protocol.TypeContext, func(ctx context.Context, env *protocol.Envelope) error {
		payload, err := env.Context()
		if err != nil {
			return err
		}
		return store.UpsertContext(ctx, payload)
	})

	r.Handle(protocol.TypeEvent, func(ctx context.Context, env *protocol.Envelope) error {
		event, err := env.Event()
		if err != nil {
			return err
		}
		return store.AppendEvent(ctx, env.ContextID, event)
	})

	r.Handle(protocol.TypeTool, func(ctx context.Context, env *protocol.Envelope) error {
		tool, err := env.Tool()
		if err != nil {
			return err
		}
		if sink == nil {
			observability.Emit(ctx, r.observer, EventTypeIgnored, observability.LevelVerbose, "router.Dispatch", map[string]any{
				"type":    string(env.Type),
				"tool_id": tool.ID,
			})
			return nil
		}
		return sink.Register(ctx, tool)
	})

	return r
}

// Handle installs fn for frames of type typ, replacing any existing handler.
func (r *Router) Handle(typ protocol.MessageType, fn HandlerFunc) {
	r.handlers[typ] = fn
}

// Dispatch decodes frame and routes it. Frames of unhandled types are
// ignored and return nil. A decode failure returns an error wrapping
// protocol.ErrMalformed or protocol.ErrMissingType; a handler failure
// returns the handler's error wrapped with the frame type. In every case
// the frame is finished and the caller moves on to the next one.
func (r *Router) Dispatch(ctx context.Context, frame []byte) error {
	const source = "router.Dispatch"

	env, err := protocol.Decode(frame)
	if err != nil {
		r.metrics.dropped.Add(1)
		observability.Emit(ctx, r.observer, EventDecodeError, observability.LevelWarning, source, map[string]any{
			"error": err.Error(),
			"bytes": len(frame),
		})
		return err
	}

	handler, ok := r.handlers[env.Type]
	if !ok {
		r.metrics.ignored.Add(1)
		observability.Emit(ctx, r.observer, EventTypeIgnored, observability.LevelVerbose, source, map[string]any{
			"type": string(env.Type),
		})
		return nil
	}

	if err := handler(ctx, env); err != nil {
		r.metrics.rejected.Add(1)
		observability.Emit(ctx, r.observer, EventHandlerError, handlerErrorLevel(err), source, map[string]any{
			"type":  string(env.Type),
			"error": err.Error(),
		})
		return fmt.Errorf("%s frame: %w", env.Type, err)
	}

	r.metrics.dispatched.Add(1)
	observability.Emit(ctx, r.observer, EventDispatch, observability.LevelVerbose, source, map[string]any{
		"type": string(env.Type),
	})
	return nil
}

// Metrics returns the current dispatch counters.
func (r *Router) Metrics() MetricsSnapshot {
	return r.metrics.Snapshot()
}

// handlerErrorLevel keeps store rejections at debug level; the store has
// already reported them as warnings.
func handlerErrorLevel(err error) observability.Level {
	if errors.Is(err, tree.ErrUnknownContext) || errors.Is(err, tree.ErrInvalidEvent) || errors.Is(err, tree.ErrMissingID) {
		return observability.LevelVerbose
	}
	return observability.LevelWarning
}
