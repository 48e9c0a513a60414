// Package timer provides the cancellable countdown driving a room's
// question rounds. It is built on clockwork so tests can drive it with a
// fake clock.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	normalInterval = time.Second
	// Alert mode consumes one remaining second every quarter second, so
	// the countdown runs four times faster for the final stretch.
	alertInterval = 250 * time.Millisecond
)

// Callbacks are invoked from the countdown's own goroutine, never while
// the countdown holds its lock; receivers serialize on their own state.
type Callbacks struct {
	// OnTick is called once per elapsed unit with the remaining seconds.
	OnTick func(remaining int, alert bool)
	// OnEnd is called once when the countdown reaches zero.
	OnEnd func()
}

// Countdown counts seconds down to zero. All methods are safe for
// concurrent use. A generation counter guarantees that once Stop or
// Pause returns, no straggler tick or end callback will run.
type Countdown struct {
	clock clockwork.Clock

	mu        sync.Mutex
	gen       int
	running   bool
	alert     bool
	remaining int
}

func New(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// Start begins a countdown of the given number of seconds. Starting while
// already running cancels the previous countdown first.
func (c *Countdown) Start(seconds int, cb Callbacks) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.running = true
	c.alert = false
	c.remaining = seconds
	c.mu.Unlock()

	go c.run(gen, cb)
}

func (c *Countdown) run(gen int, cb Callbacks) {
	for {
		c.mu.Lock()
		if c.gen != gen || !c.running {
			c.mu.Unlock()
			return
		}
		interval := normalInterval
		if c.alert {
			interval = alertInterval
		}
		c.mu.Unlock()

		t := c.clock.NewTimer(interval)
		<-t.Chan()

		c.mu.Lock()
		if c.gen != gen || !c.running {
			c.mu.Unlock()
			return
		}
		c.remaining--
		remaining := c.remaining
		alert := c.alert
		if remaining <= 0 {
			c.running = false
		}
		c.mu.Unlock()

		if remaining <= 0 {
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
			return
		}

		if cb.OnTick != nil {
			cb.OnTick(remaining, alert)
		}
	}
}

// StartAlert switches to the alert cadence. The new cadence applies from
// the next tick. No-op when the countdown is not running.
func (c *Countdown) StartAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.alert = true
	}
}

// Pause freezes the remaining value without resetting it. The owner
// resumes by calling Start with the value read back from Remaining.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.gen++
	c.running = false
}

// Stop cancels the countdown and clears the remaining value. Idempotent.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.running = false
	c.alert = false
	c.remaining = 0
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remaining
}

// Running reports whether the countdown is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Alerting reports whether the countdown is in the alert cadence.
func (c *Countdown) Alerting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.alert
}
