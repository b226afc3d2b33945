package engine

import (
	"fmt"
	"sync/atomic"
)

// DefaultMaxInFlight is the default limit on concurrent dispatches.
const DefaultMaxInFlight = 1024

// dispatchQuota bounds the number of dispatches waiting on the engine.
// Each in-flight dispatch holds one observer and at most one response, so
// the quota also bounds process state held for callers.
//
// Thread-safety: safe for concurrent use (atomic operations).
type dispatchQuota struct {
	limit   int64
	current atomic.Int64
}

func newDispatchQuota(limit int) *dispatchQuota {
	return &dispatchQuota{limit: int64(limit)}
}

// acquire reserves a slot. Returns a *DispatchError when the quota is
// exhausted.
func (q *dispatchQuota) acquire() error {
	for {
		cur := q.current.Load()
		if q.limit > 0 && cur >= q.limit {
			return &DispatchError{
				Code:    ErrCodeQuotaExceeded,
				Message: fmt.Sprintf("%d dispatches in flight (limit %d)", cur, q.limit),
			}
		}
		if q.current.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// release returns a slot.
func (q *dispatchQuota) release() {
	q.current.Add(-1)
}

// InFlight returns the number of reserved slots.
func (q *dispatchQuota) InFlight() int {
	return int(q.current.Load())
}
