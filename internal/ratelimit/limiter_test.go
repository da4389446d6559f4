package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
	nap []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.nap = append(c.nap, d)
	return nil
}

func newTestLimiter(perMinute int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	// delay of 1ns keeps the pace leg effectively instant in tests.
	l := New(time.Nanosecond, perMinute)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestWait_UnderCap_NoWindowSleep(t *testing.T) {
	l, clock := newTestLimiter(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clock.nap)
	assert.Equal(t, 5, l.InWindow())
}

func TestWait_AtCap_SleepsUntilOldestAgesOut(t *testing.T) {
	l, clock := newTestLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}

	require.NoError(t, l.Wait(context.Background()))
	require.NotEmpty(t, clock.nap)
	// First sleep covers the full window plus buffer since all three calls
	// landed at the same instant.
	assert.Equal(t, window+buffer, clock.nap[0])
	assert.LessOrEqual(t, l.InWindow(), 3)
}

func TestWait_WindowBoundHolds(t *testing.T) {
	l, _ := newTestLimiter(10)
	for i := 0; i < 40; i++ {
		require.NoError(t, l.Wait(context.Background()))
		assert.LessOrEqual(t, l.InWindow(), 10)
	}
}

func TestWait_CancelledContext(t *testing.T) {
	l, _ := newTestLimiter(2)
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.sleep = sleepCtx // real sleep so cancellation is observed
	err := l.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset_ClearsHistory(t *testing.T) {
	l, clock := newTestLimiter(2)
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	require.Equal(t, 2, l.InWindow())

	l.Reset()
	assert.Equal(t, 0, l.InWindow())

	// After reset the next call passes without a window sleep.
	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, clock.nap)
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultDelay, l.delay)
	assert.Equal(t, DefaultPerMinute, l.perMinute)
}
