package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterDeniesAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	const limit = 5
	for i := 1; i <= limit; i++ {
		res, err := limiter.Check(ctx, "phone-hash", limit)
		require.NoError(t, err)
		require.True(t, res.Allowed, "attempt %d should be allowed", i)
		require.Equal(t, limit-i, res.Remaining)
		require.True(t, res.ResetTime.Equal(clock.Now().Add(DefaultWindow)))
	}

	res, err := limiter.Check(ctx, "phone-hash", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Zero(t, res.Remaining)
}

func TestMemoryLimiterStartsFreshWindowAfterReset(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	first, err := limiter.Check(ctx, "ip", 1)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	denied, err := limiter.Check(ctx, "ip", 1)
	require.NoError(t, err)
	require.False(t, denied.Allowed)
	require.True(t, denied.ResetTime.Equal(first.ResetTime))

	// Exactly at resetTime the window is still active.
	clock.Advance(DefaultWindow)
	atBoundary, err := limiter.Check(ctx, "ip", 1)
	require.NoError(t, err)
	require.False(t, atBoundary.Allowed)

	clock.Advance(time.Second)
	fresh, err := limiter.Check(ctx, "ip", 1)
	require.NoError(t, err)
	require.True(t, fresh.Allowed)
	require.Zero(t, fresh.Remaining)
	require.True(t, fresh.ResetTime.Equal(clock.Now().Add(DefaultWindow)))
}

func TestMemoryLimiterIdentifiersAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	_, err := limiter.Check(ctx, "a", 1)
	require.NoError(t, err)
	res, err := limiter.Check(ctx, "b", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(WithClock(clock.Now), WithWindow(time.Minute))
	ctx := context.Background()

	_, _ = limiter.Check(ctx, "old", 3)
	clock.Advance(30 * time.Second)
	_, _ = limiter.Check(ctx, "new", 3)
	require.Equal(t, 2, limiter.Len())

	clock.Advance(45 * time.Second)
	require.Equal(t, 1, limiter.Cleanup())
	require.Equal(t, 1, limiter.Len())
}

func TestMemoryLimiterConcurrentChecksNeverExceedMax(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	const (
		limit   = 10
		workers = 50
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, "shared", limit)
			assert.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, limit, allowed)
}

func TestMemoryLimiterStartStop(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(WithClock(clock.Now), WithWindow(time.Second), WithCleanupInterval(5*time.Millisecond))

	_, _ = limiter.Check(context.Background(), "k", 1)
	clock.Advance(2 * time.Second)

	limiter.Start()
	limiter.Start()
	require.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 5*time.Millisecond)
	limiter.Stop()
	limiter.Stop()
}
