package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now time.Time
}

func newTestLimiter(minDelay, maxDelay time.Duration, perMinute int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	rl := NewRateLimiter(minDelay, maxDelay, perMinute)
	rl.now = func() time.Time { return clock.now }
	rl.sleep = func(_ context.Context, d time.Duration) error {
		clock.now = clock.now.Add(d)
		return nil
	}
	return rl, clock
}

func TestRateLimiterWindowCap(t *testing.T) {
	const perMinute = 3
	rl, clock := newTestLimiter(0, 0, perMinute)

	var stamps []time.Time
	for i := 0; i < 10; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		stamps = append(stamps, clock.now)
	}

	for i := range stamps {
		count := 0
		for j := i; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < time.Minute {
				count++
			}
		}
		if count > perMinute {
			t.Fatalf("window starting at %v holds %d requests, cap is %d", stamps[i], count, perMinute)
		}
	}
}

func TestRateLimiterJitterFloor(t *testing.T) {
	const minDelay = 100 * time.Millisecond
	rl, clock := newTestLimiter(minDelay, 300*time.Millisecond, 1000)

	var stamps []time.Time
	for i := 0; i < 20; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		stamps = append(stamps, clock.now)
	}

	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < minDelay {
			t.Fatalf("gap %v between requests %d and %d is below floor %v", gap, i-1, i, minDelay)
		}
	}
}

func TestRateLimiterJitterCeiling(t *testing.T) {
	const maxDelay = 250 * time.Millisecond
	rl, clock := newTestLimiter(50*time.Millisecond, maxDelay, 1000)

	previous := time.Time{}
	for i := 0; i < 20; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		if !previous.IsZero() {
			if gap := clock.now.Sub(previous); gap > maxDelay {
				t.Fatalf("gap %v exceeds jitter ceiling %v", gap, maxDelay)
			}
		}
		previous = clock.now
	}
}

func TestRateLimiterCancelledContext(t *testing.T) {
	rl := NewRateLimiter(time.Hour, time.Hour, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first wait should not block: %v", err)
	}

	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("wait after cancel = %v, want context.Canceled", err)
	}
}
