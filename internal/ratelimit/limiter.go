// Package ratelimit throttles outbound provider calls to a fixed inter-call
// delay and a rolling per-minute cap. It is a throttle, not a retry
// mechanism: no jitter, no backoff.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	window = time.Minute

	// buffer pads the window wait so the oldest call has aged out by the
	// time we re-check.
	buffer = 100 * time.Millisecond
)

// DefaultDelay is the minimum gap imposed between consecutive calls.
const DefaultDelay = time.Second

// DefaultPerMinute caps calls over any trailing 60-second window.
const DefaultPerMinute = 60

// Limiter throttles calls through Wait. State is per-instance and
// in-process; a multi-instance deployment needs a shared counter instead.
type Limiter struct {
	mu        sync.Mutex
	delay     time.Duration
	perMinute int
	pace      *rate.Limiter // fixed inter-call delay
	history   []time.Time   // timestamps of calls in the trailing window

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Limiter. Non-positive arguments fall back to the defaults
// (1s delay, 60 calls/minute).
func New(delay time.Duration, perMinute int) *Limiter {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	return &Limiter{
		delay:     delay,
		perMinute: perMinute,
		pace:      rate.NewLimiter(rate.Every(delay), 1),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait suspends the caller until it is safe to issue the next provider call,
// then records the call. It returns early only on context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.history) < l.perMinute {
			l.mu.Unlock()
			break
		}
		wait := window - now.Sub(l.history[0]) + buffer
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return eris.Wrap(err, "ratelimit: window wait")
		}
	}

	// Independent of window occupancy, keep the fixed gap between calls.
	if err := l.pace.Wait(ctx); err != nil {
		return eris.Wrap(err, "ratelimit: delay wait")
	}

	l.mu.Lock()
	l.history = append(l.history, l.now())
	l.mu.Unlock()
	return nil
}

// Reset clears the call history and the pacing state. Used after hard
// failures so a fresh run does not inherit compounded waits.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = nil
	l.pace = rate.NewLimiter(rate.Every(l.delay), 1)
}

// InWindow reports how many recorded calls fall inside the trailing window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.history)
}

// prune drops timestamps older than the trailing window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = l.history[i:]
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
