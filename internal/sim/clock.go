// Package sim drives the fixed-timestep simulation and owns the
// authoritative tick counter.
package sim

import (
	"sync/atomic"
	"time"
)

// DefaultTickRate is used when no rate is configured.
const DefaultTickRate = 15

// Clock is the authoritative tick source. Reads are safe from any
// goroutine; only the loop advances it.
type Clock struct {
	rate int
	tick atomic.Int64
}

// NewClock constructs a clock at tick zero.
func NewClock(rate int) *Clock {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Clock{rate: rate}
}

// CurrentTick reports the last completed tick.
func (c *Clock) CurrentTick() int64 {
	if c == nil {
		return 0
	}
	return c.tick.Load()
}

// TickRate reports ticks per second.
func (c *Clock) TickRate() int {
	if c == nil {
		return DefaultTickRate
	}
	return c.rate
}

// Interval is the wall time of one tick.
func (c *Clock) Interval() time.Duration {
	return time.Second / time.Duration(c.TickRate())
}

// Next advances the clock and returns the new tick.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}
