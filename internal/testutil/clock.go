package testutil

import (
	"sync"
	"time"
)

// GenesisTime is the default start of a StepClock.
var GenesisTime = time.Date(2018, 10, 11, 3, 23, 38, 0, time.UTC)

// StepClock is a deterministic wall clock for tests. Every call to Now
// returns the current instant and then advances it by a fixed step, so the
// same sequence of pushes produces identical header timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewStepClock creates a clock starting at start that advances by step.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, now: start, step: step}
}

// NewDeterministicClock creates a StepClock at GenesisTime advancing one
// second per call.
func NewDeterministicClock() *StepClock {
	return NewStepClock(GenesisTime, time.Second)
}

// Now returns the current instant and advances the clock.
// Matches the func() time.Time shape expected by chain.WithClock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next Now call will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
