package cache

import (
	"context"
	"time"
)

// Store is a shared fixed-window counter backend.
type Store interface {
	// Hit records one attempt against a fixed-window counter. When the window is
	// exhausted (count already at limit) the counter is left untouched and the
	// result reports Allowed=false.
	Hit(ctx context.Context, key string, limit int64, window time.Duration) (HitResult, error)
}

// HitResult reports the state of a fixed-window counter after a Hit.
type HitResult struct {
	Count   int64
	ResetAt time.Time
	Allowed bool
}

// Option customises store construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
