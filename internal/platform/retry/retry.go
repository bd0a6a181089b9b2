// Package retry provides an explicit bounded-retry policy for operations
// against the tracker store. The delay schedule exists to absorb the store's
// read-after-write lag, not to mask real failures, so the attempt count is
// always capped.
package retry

import (
	"context"
	"time"
)

// Sleeper waits out a delay. Tests inject NopSleeper so the escalation ladder
// runs with zero real delay.
type Sleeper interface {
	Wait(ctx context.Context, d time.Duration) error
}

// ClockSleeper waits on the wall clock, honoring context cancellation.
type ClockSleeper struct{}

func (ClockSleeper) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NopSleeper returns immediately. For tests.
type NopSleeper struct{}

func (NopSleeper) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Policy is a bounded-retry schedule. MaxAttempts counts delayed re-attempts,
// not the initial try. Delay(i) returns the wait before re-attempt i
// (0-based); when the schedule is shorter than MaxAttempts the last entry
// repeats.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultPolicy is the conflict-recovery schedule: at most two delayed
// re-queries per resolution step, a few hundred milliseconds to roughly one
// second apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Delays:      []time.Duration{300 * time.Millisecond, 1 * time.Second},
	}
}

// Delay returns the wait before re-attempt i.
func (p Policy) Delay(i int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if i >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	if i < 0 {
		return p.Delays[0]
	}
	return p.Delays[i]
}
