// Package wait models every wait in the engine as bounded polling against
// an injectable clock.
package wait

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by all waits.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FakeClock advances virtual time on every Sleep without blocking.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	onTick func(now time.Time)
}

// NewFakeClock returns a fake clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
		c.slept += d
	}
	now, hook := c.now, c.onTick
	c.mu.Unlock()
	if hook != nil {
		hook(now)
	}
	return nil
}

// Advance moves the clock forward without counting as slept time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Slept reports the total virtual time spent in Sleep.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// OnTick registers a hook run after every Sleep, letting tests change page
// state as virtual time passes.
func (c *FakeClock) OnTick(fn func(now time.Time)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

// Condition is evaluated on every poll. Errors abort the poll.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it reports true, the timeout
// elapses or ctx ends. It returns false, nil on timeout. The condition is
// always evaluated at least once.
func Poll(ctx context.Context, clock Clock, timeout, interval time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := clock.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if !clock.Now().Before(deadline) {
			return false, nil
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return false, err
		}
	}
}

// Deadline tracks a bounded window on a clock.
type Deadline struct {
	clock Clock
	end   time.Time
}

// NewDeadline starts a window of length d.
func NewDeadline(clock Clock, d time.Duration) Deadline {
	return Deadline{clock: clock, end: clock.Now().Add(d)}
}

// Expired reports whether the window has elapsed.
func (d Deadline) Expired() bool { return !d.clock.Now().Before(d.end) }

// Remaining returns the time left, never negative.
func (d Deadline) Remaining() time.Duration {
	r := d.end.Sub(d.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}
