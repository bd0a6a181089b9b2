package retry

import (
	"context"
	"testing"
	"time"
)

func TestPolicy_Delay_Schedule(t *testing.T) {
	p := Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{100 * time.Millisecond, 1 * time.Second},
	}

	if d := p.Delay(0); d != 100*time.Millisecond {
		t.Errorf("expected 100ms for attempt 0, got %v", d)
	}
	if d := p.Delay(1); d != 1*time.Second {
		t.Errorf("expected 1s for attempt 1, got %v", d)
	}
	// Past the end of the schedule the last entry repeats.
	if d := p.Delay(5); d != 1*time.Second {
		t.Errorf("expected 1s for attempt 5, got %v", d)
	}
}

func TestPolicy_Delay_Empty(t *testing.T) {
	p := Policy{MaxAttempts: 2}
	if d := p.Delay(0); d != 0 {
		t.Errorf("expected zero delay for empty schedule, got %v", d)
	}
}

func TestDefaultPolicy_Bounded(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 2 {
		t.Errorf("expected 2 re-attempts, got %d", p.MaxAttempts)
	}
	if len(p.Delays) == 0 {
		t.Error("expected a non-empty delay schedule")
	}
	for i, d := range p.Delays {
		if d <= 0 || d > 2*time.Second {
			t.Errorf("delay %d out of expected range: %v", i, d)
		}
	}
}

func TestNopSleeper_ReturnsImmediately(t *testing.T) {
	start := time.Now()
	if err := (NopSleeper{}).Wait(context.Background(), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("NopSleeper should not block")
	}
}

func TestClockSleeper_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (ClockSleeper{}).Wait(ctx, time.Hour); err == nil {
		t.Fatal("expected context error after cancellation")
	}
}

func TestClockSleeper_ZeroDelay(t *testing.T) {
	if err := (ClockSleeper{}).Wait(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
