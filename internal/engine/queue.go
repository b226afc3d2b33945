package engine

import (
	"sync"

	"github.com/roach88/sourcechain/internal/action"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeObserve registers an observer.
	EventTypeObserve EventType = iota + 1
	// EventTypeAction applies a wrapped action to process state.
	EventTypeAction
	// EventTypeForget purges the observer and response of an abandoned
	// dispatch.
	EventTypeForget
)

// String returns the event type name for logging.
func (t EventType) String() string {
	switch t {
	case EventTypeObserve:
		return "observe"
	case EventTypeAction:
		return "action"
	case EventTypeForget:
		return "forget"
	default:
		return "unknown"
	}
}

// Event wraps observer registrations, actions and purges for the queue.
type Event struct {
	Type     EventType
	Observer *Observer
	Action   *action.Wrapper
	// ForgetID is the wrapper ID to purge for EventTypeForget.
	ForgetID string
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that Dispatch never blocks on enqueue; the
// number of in-flight dispatches is bounded separately by the quota.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds events to the back of the queue atomically, so no other
// producer can interleave between them.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(events ...Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, events...)

	// Non-blocking; the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not pin observers and
	// actions after they are processed.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// closedAndEmpty reports whether the queue is closed and fully drained.
func (q *eventQueue) closedAndEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
