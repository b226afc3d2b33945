package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/chain"
)

// DefaultDispatchTimeout bounds how long Dispatch waits for a response.
const DefaultDispatchTimeout = 10 * time.Second

// ErrInvalidAction is returned by Dispatch for actions that fail
// validation before reaching the reducer loop.
var ErrInvalidAction = errors.New("invalid action")

// Engine is the single-writer reducer loop.
//
// CRITICAL: All process state (responses, links, observers) is read and
// written only by the Run goroutine. Callers interact through Dispatch,
// which communicates with Run exclusively via the event queue.
//
// Thread-safety model:
//   - Dispatch(), Stop(), diagnostics: safe from any goroutine
//   - Run(): must be called from exactly one goroutine, once
type Engine struct {
	chain   *chain.SourceChain
	queue   *eventQueue
	clock   *Clock
	nonces  action.NonceGenerator
	timeout time.Duration
	quota   *dispatchQuota

	// Owned by the Run goroutine.
	state     *State
	observers registry

	// Mirrors of registry and response counts for diagnostics.
	pendingObservers atomic.Int64
	pendingResponses atomic.Int64

	running atomic.Bool
	stopped chan struct{} // closed when Run returns
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithDispatchTimeout sets the bounded wait used by Dispatch.
// A non-positive value disables the timeout; ctx still applies.
//
// Default: 10s (DefaultDispatchTimeout)
func WithDispatchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithNonceGenerator sets the nonce source for wrapper IDs.
//
// Default: action.UUIDv7Generator
func WithNonceGenerator(g action.NonceGenerator) EngineOption {
	return func(e *Engine) {
		e.nonces = g
	}
}

// WithMaxInFlight sets the limit on concurrent dispatches.
// A non-positive value disables the limit.
//
// Default: 1024 (DefaultMaxInFlight)
func WithMaxInFlight(n int) EngineOption {
	return func(e *Engine) {
		e.quota = newDispatchQuota(n)
	}
}

// New creates an Engine that applies actions to sc.
func New(sc *chain.SourceChain, opts ...EngineOption) *Engine {
	e := &Engine{
		chain:   sc,
		queue:   newEventQueue(),
		clock:   NewClock(),
		nonces:  action.UUIDv7Generator{},
		timeout: DefaultDispatchTimeout,
		quota:   newDispatchQuota(DefaultMaxInFlight),
		state:   newState(),
		stopped: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called; events already
// queued when Stop is called are still processed.
//
// ERROR HANDLING: a failed reduction is logged with full action context
// and stored as an error response; the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: Run called more than once")
	}
	defer close(e.stopped)
	slog.Info("engine starting", "dispatch_timeout", e.timeout)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// A closed signal channel fires immediately; stop only once
			// the queue is both closed and drained.
			if e.queue.closedAndEmpty() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which causes Run to return after draining.
// Subsequent dispatches fail with ErrCodeEngineStopped.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done returns a channel closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// Dispatch submits a and blocks until its response is produced, the
// dispatch timeout elapses, ctx ends, or the engine stops.
//
// Bridge failures are *DispatchError. Action failures are reported in
// the returned Response.Err with a nil error.
func (e *Engine) Dispatch(ctx context.Context, a action.Action) (action.Response, error) {
	w, err := action.Wrap(a, e.nonces)
	if err != nil {
		return action.Response{}, fmt.Errorf("dispatch: %w: %w", ErrInvalidAction, err)
	}

	if err := e.quota.acquire(); err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			de.ActionID, de.Kind = w.ID, a.Kind()
		}
		return action.Response{}, err
	}
	defer e.quota.release()

	reply := make(chan action.Response, 1)
	obs := &Observer{
		ID:    w.ID,
		Ready: func(s *State) bool { return s.HasResponse(w.ID) },
		Fire: func(s *State) {
			resp, _ := s.TakeResponse(w.ID)
			reply <- resp
		},
	}

	// Observer first, in the same atomic enqueue: it must see the
	// reduction of its own action.
	if !e.queue.Enqueue(
		Event{Type: EventTypeObserve, Observer: obs},
		Event{Type: EventTypeAction, Action: &w},
	) {
		return action.Response{}, newStoppedError(w)
	}

	var timeout <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-reply:
		return resp, nil

	case <-timeout:
		e.forget(w.ID)
		slog.Warn("dispatch timed out", "action_id", w.ID, "kind", w.Action.Kind(), "timeout", e.timeout)
		return action.Response{}, newTimeoutError(w, e.timeout)

	case <-ctx.Done():
		e.forget(w.ID)
		return action.Response{}, newCancelledError(w, ctx.Err())

	case <-e.stopped:
		// Run may have fired the observer just before exiting.
		select {
		case resp := <-reply:
			return resp, nil
		default:
		}
		return action.Response{}, newStoppedError(w)
	}
}

// forget purges the observer and any late response of an abandoned
// dispatch. Ignored once the engine has stopped.
func (e *Engine) forget(id string) {
	e.queue.Enqueue(Event{Type: EventTypeForget, ForgetID: id})
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeObserve:
		if event.Observer == nil {
			return fmt.Errorf("observe event missing observer")
		}
		e.observers.add(event.Observer)

	case EventTypeAction:
		if event.Action == nil || event.Action.Action == nil {
			return fmt.Errorf("action event missing action")
		}
		e.processAction(ctx, *event.Action)

	case EventTypeForget:
		removed := e.observers.remove(event.ForgetID)
		_, dropped := e.state.TakeResponse(event.ForgetID)
		slog.Debug("dispatch forgotten",
			"action_id", event.ForgetID,
			"observers_removed", removed,
			"response_dropped", dropped,
		)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}

	e.syncCounters()
	return nil
}

// processAction reduces w, stores its response and notifies observers.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processAction(ctx context.Context, w action.Wrapper) {
	seq := e.clock.Next()
	resp := e.reduce(ctx, w)
	if resp.Err != nil {
		logActionError(w, seq, resp.Err)
	}

	e.state.putResponse(resp)
	fired := e.observers.notify(e.state)

	slog.Debug("action reduced",
		"action_id", w.ID,
		"kind", w.Action.Kind(),
		"seq", seq,
		"observers_fired", fired,
	)
}

func (e *Engine) syncCounters() {
	e.pendingObservers.Store(int64(e.observers.len()))
	e.pendingResponses.Store(int64(len(e.state.responses)))
}

// PendingObservers returns the number of registered observers.
func (e *Engine) PendingObservers() int {
	return int(e.pendingObservers.Load())
}

// PendingResponses returns the number of responses not yet consumed.
func (e *Engine) PendingResponses() int {
	return int(e.pendingResponses.Load())
}

// QueueLen returns the current number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Reductions returns the number of actions reduced so far.
func (e *Engine) Reductions() int64 {
	return e.clock.Current()
}

// InFlight returns the number of dispatches currently waiting.
func (e *Engine) InFlight() int {
	return e.quota.InFlight()
}

// logActionError logs a failed reduction with full action context.
func logActionError(w action.Wrapper, seq int64, err error) {
	slog.Error("action reduction failed",
		"error", err,
		"action_id", w.ID,
		"kind", w.Action.Kind(),
		"payload", w.Action.Payload(),
		"seq", seq,
	)
}

// logEventError logs a malformed event with whatever context it carries.
func logEventError(event Event, err error) {
	switch {
	case event.Action != nil && event.Action.Action != nil:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
			"action_id", event.Action.ID,
			"kind", event.Action.Action.Kind(),
		)
	case event.Observer != nil:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
			"observer_id", event.Observer.ID,
		)
	default:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
			"forget_id", event.ForgetID,
		)
	}
}
