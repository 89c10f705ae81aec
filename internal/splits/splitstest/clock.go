package splitstest

import (
	"sync"
	"time"
)

// Clock is an adapter.Clock whose waits complete immediately and are recorded
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

// NewClock creates a clock starting at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After advances the fake time by d and returns an already fired channel
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.delays = append(c.delays, d)

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the fake time forward without recording a wait
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Delays returns every wait requested so far
func (c *Clock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}
