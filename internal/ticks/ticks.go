// Package ticks provides the monotonic counter that all controller timers
// are measured against. The counter only moves when the owner advances it,
// once per control tick, so timer arithmetic never touches the wall clock.
package ticks

import (
	"sync/atomic"
	"time"
)

// Seconds is a point on the tick counter, in whole seconds since start.
// Differences are computed with unsigned wrap-around.
type Seconds uint32

// Source reports the current counter value.
type Source interface {
	Seconds() Seconds
}

// Since returns now − then.
func Since(now, then Seconds) Seconds {
	return now - then
}

// Counter is a monotonic millisecond counter. It is safe for concurrent
// readers; only one goroutine should advance it.
type Counter struct {
	ms atomic.Uint64
}

// NewCounter returns a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Advance moves the counter forward by d. Negative durations are ignored.
func (c *Counter) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.ms.Add(uint64(d / time.Millisecond))
}

// AdvanceTo moves the counter to elapsed since start, if that is later
// than the current value.
func (c *Counter) AdvanceTo(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	target := uint64(elapsed / time.Millisecond)
	for {
		cur := c.ms.Load()
		if target <= cur || c.ms.CompareAndSwap(cur, target) {
			return
		}
	}
}

// Millis returns the counter in milliseconds.
func (c *Counter) Millis() uint64 {
	return c.ms.Load()
}

// Seconds returns the counter in whole seconds.
func (c *Counter) Seconds() Seconds {
	return Seconds(c.ms.Load() / 1000)
}

// Duration returns the counter as a duration since start.
func (c *Counter) Duration() time.Duration {
	return time.Duration(c.ms.Load()) * time.Millisecond
}
