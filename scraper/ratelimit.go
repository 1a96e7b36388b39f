package scraper

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter bounds request cadence with a trailing one-minute window cap
// plus a randomized inter-request delay. The whole decide-and-record step runs
// under one lock, so concurrent callers cannot race past the cap.
type RateLimiter struct {
	mu        sync.Mutex
	minDelay  time.Duration
	maxDelay  time.Duration
	perMinute int
	last      time.Time
	window    []time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateLimiter builds a limiter allowing perMinute requests in any trailing
// 60-second window, with a uniform jitter in [minDelay, maxDelay] between
// consecutive requests.
func NewRateLimiter(minDelay, maxDelay time.Duration, perMinute int) *RateLimiter {
	return &RateLimiter{
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		perMinute: perMinute,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until the next request may start, or until ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	if rl.perMinute > 0 && len(rl.window) >= rl.perMinute {
		wait := rl.window[0].Add(rateWindow).Sub(now)
		if wait > 0 {
			if err := rl.sleep(ctx, wait); err != nil {
				return err
			}
			now = rl.now()
		}
		rl.prune(now)
	}

	if !rl.last.IsZero() {
		gap := rl.jitter()
		if since := now.Sub(rl.last); since < gap {
			if err := rl.sleep(ctx, gap-since); err != nil {
				return err
			}
			now = rl.now()
		}
	}

	rl.last = now
	rl.window = append(rl.window, now)
	return nil
}

// prune drops timestamps that fell outside the trailing window.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(rl.window) && !rl.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.window = append(rl.window[:0], rl.window[i:]...)
	}
}

func (rl *RateLimiter) jitter() time.Duration {
	if rl.maxDelay <= rl.minDelay {
		return rl.minDelay
	}
	return rl.minDelay + time.Duration(rand.Int63n(int64(rl.maxDelay-rl.minDelay)+1))
}

// sleepContext sleeps for d or returns early when ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
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
