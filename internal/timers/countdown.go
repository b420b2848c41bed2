// Package timers holds the derived one-second countdowns (round clock,
// action cooldown). Countdowns are pure display state: the authority for
// their base value lives elsewhere, and between resets they only ever
// decrement.
package timers

import "sync"

// Countdown is a whole-second countdown with a floor of zero. Tick is
// driven by the session's shared one-second clock; Set is the discrete
// reset to a new authoritative base value.
type Countdown struct {
	mu        sync.Mutex
	remaining int
}

// Set resets the countdown to an authoritative value. Negative values
// clamp to zero.
func (c *Countdown) Set(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
}

// Tick decrements by one second, stopping at zero.
func (c *Countdown) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining > 0 {
		c.remaining--
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Active reports whether the countdown is still running.
func (c *Countdown) Active() bool {
	return c.Remaining() > 0
}
