package ratelimit

import (
	"context"
	"fmt"

	"github.com/twentyfive/authgate/internal/cache"
)

// StoreLimiter applies the same fixed-window contract over a shared cache.Store
// so counters are consistent across instances.
type StoreLimiter struct {
	store cache.Store
	cfg   config
}

// NewStoreLimiter wraps a cache store.
func NewStoreLimiter(store cache.Store, opts ...Option) (*StoreLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	return &StoreLimiter{store: store, cfg: newConfig(opts)}, nil
}

// Check records an attempt for identifier in the shared store.
func (l *StoreLimiter) Check(ctx context.Context, identifier string, maxAttempts int) (Result, error) {
	hit, err := l.store.Hit(ctx, storeKeyPrefix+identifier, int64(maxAttempts), l.cfg.window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: check %s: %w", identifier, err)
	}

	res := Result{Allowed: hit.Allowed, ResetTime: hit.ResetAt}
	if hit.Allowed {
		res.Remaining = nonNegative(maxAttempts - int(hit.Count))
	}
	return res, nil
}
