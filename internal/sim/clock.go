package sim

import (
	"fmt"
	"sync"
	"time"
)

// SpeedMultipliers is the discrete set of accepted time multipliers.
var SpeedMultipliers = []float64{0.25, 0.5, 1, 2, 4}

// Clock tracks simulated time under a global pause flag and a time
// multiplier. Entities read it at the top of every tick; while paused,
// simulated time stands still so cooldowns and dwell timers freeze with
// the world.
type Clock struct {
	mu         sync.Mutex
	paused     bool
	multiplier float64
	simNanos   int64
	lastReal   time.Time
}

// NewClock returns a running clock at multiplier 1.
func NewClock() *Clock {
	return &Clock{multiplier: 1, lastReal: time.Now()}
}

// advanceLocked folds real elapsed time into the simulated accumulator.
func (c *Clock) advanceLocked() {
	now := time.Now()
	if !c.paused {
		c.simNanos += int64(float64(now.Sub(c.lastReal)) * c.multiplier)
	}
	c.lastReal = now
}

// Now returns the simulated time elapsed since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	return time.Duration(c.simNanos)
}

// Pause freezes simulated time.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.paused = true
}

// Resume unfreezes simulated time.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.paused = false
}

// Advance adds d to simulated time directly, bypassing the real-time
// accumulator. It fast-forwards scenarios without waiting.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.simNanos += int64(d)
}

// Paused reports whether the simulation is paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetMultiplier selects a time multiplier from the discrete accepted set.
func (c *Clock) SetMultiplier(v float64) error {
	ok := false
	for _, m := range SpeedMultipliers {
		if m == v {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("unsupported time multiplier %v", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.multiplier = v
	return nil
}

// Multiplier returns the current time multiplier.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}
