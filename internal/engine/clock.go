package engine

import "sync/atomic"

// Clock is the monotonic logical clock that numbers reductions.
//
// Every action reduced by the Run loop is stamped with the next value, so
// log lines and diagnostics can be ordered without wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the Run goroutine advances it; other goroutines may read Current.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the number of reductions stamped so far.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
