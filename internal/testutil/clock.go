package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant DeterministicClock starts at unless told
// otherwise: the morning of day 1 of a test event.
var DefaultStart = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests. Every call to Now returns
// the previous instant plus a fixed step, so scans recorded in a test get
// distinct, predictable timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewDeterministicClock creates a clock starting at DefaultStart and
// stepping one second per call.
//
// The first call to Now() returns DefaultStart.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppingClock(DefaultStart, time.Second)
}

// NewSteppingClock creates a clock starting at start and advancing by step
// on every call to Now. A zero step freezes the clock.
func NewSteppingClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Peek returns the instant the next Now call will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.n) * c.step)
}

// Advance moves the clock forward by d without consuming a step.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.start.Add(d)
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next call to Now() returns the
// start instant again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
