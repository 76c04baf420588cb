// Package countdown drives server-side test timers. Remaining time is
// re-derived from the fixed deadline on every tick, so drift in tick delivery
// never stretches an attempt.
package countdown

import (
	"context"
	"time"
)

// Controller runs a ticking countdown toward a fixed deadline.
//
// Now and Interval exist for tests; the zero value of both gets sane
// defaults (wall clock, one second).
type Controller struct {
	Now      func() time.Time
	Interval time.Duration
}

// Run ticks until the deadline passes or ctx is cancelled.
//
// onTick receives the remaining whole seconds; an error from it stops the
// loop (the consumer is gone). When the countdown hits zero onExpire fires.
// If onExpire fails it is retried on subsequent ticks until it succeeds, so
// a transient failure never loses the expiry. onExpire fires at most once
// successfully; Run returns nil right after.
func (c *Controller) Run(ctx context.Context, deadline time.Time, onTick func(remaining int) error, onExpire func() error) error {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		remaining := remainingSeconds(now(), deadline)
		if err := onTick(remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if err := onExpire(); err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func remainingSeconds(now, deadline time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	// Round up so the countdown shows 1 until the deadline actually passes.
	return int((d + time.Second - 1) / time.Second)
}
