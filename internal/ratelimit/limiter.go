// Package ratelimit provides fixed-window attempt counters keyed by an
// arbitrary identifier (phone hash, client IP, account id).
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the length of a fixed window.
const DefaultWindow = 15 * time.Minute

// storeKeyPrefix namespaces limiter counters in a shared store.
const storeKeyPrefix = "ratelimit:"

// Result is the outcome of a Check. A denial is reported through Allowed, never as an error.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Limiter is implemented by the in-process and shared-store limiters.
type Limiter interface {
	Check(ctx context.Context, identifier string, maxAttempts int) (Result, error)
}

// Option customises a limiter.
type Option func(*config)

type config struct {
	window   time.Duration
	interval time.Duration
	now      func() time.Time
}

// WithWindow overrides the window duration.
func WithWindow(window time.Duration) Option {
	return func(c *config) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithCleanupInterval sets how often Start sweeps expired windows.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		window:   DefaultWindow,
		interval: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
