// Package engine implements the action dispatch bridge: a single-writer
// reducer loop over process state, plus the observer registry that turns
// its asynchronous updates into blocking calls.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Engine.Run owns all process state (pending responses, links, observers)
// and processes events one at a time in FIFO order. Nothing else reads or
// writes that state, so every transition is totally ordered.
//
// Dispatch Protocol:
//  1. Dispatch wraps the action with a unique ID (action.Wrap).
//  2. It enqueues an Observe event whose predicate is "a response keyed by
//     this ID exists", THEN the Action event. Both go through the same FIFO
//     queue, so the observer is registered before the action is reduced.
//  3. Run reduces the action, stores the response under its ID, and
//     evaluates every observer in registration order. An observer whose
//     predicate holds removes the response, sends it on its one-shot reply
//     channel and leaves the registry.
//  4. Dispatch returns the response.
//
// Bounded Wait:
// Dispatch waits at most the dispatch timeout and honours ctx. On either,
// it enqueues a Forget event that purges its observer and any response
// that arrives later, so abandoned dispatches never accumulate state.
//
// ERROR HANDLING:
// Action failures travel in Response.Err and are logged by Run ("log and
// continue"). Bridge failures (timeout, cancellation, stopped engine,
// quota) are *DispatchError values returned by Dispatch.
package engine
