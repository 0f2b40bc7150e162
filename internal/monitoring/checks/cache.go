package checks

import (
	"context"
	"time"

	"github.com/twentyfive/authgate/internal/monitoring"
)

const defaultCacheTimeout = 2 * time.Second

// Pinger is satisfied by shared cache backends that support a liveness round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache probes the rate-limit backend. Process-local backends (pinger == nil)
// always report up with the backend name as details.
func Cache(backend string, pinger Pinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if pinger == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  backend,
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultCacheTimeout))
		defer cancel()

		if err := pinger.Ping(probeCtx); err != nil {
			result := monitoring.ResultFromError("cache", err, time.Since(start))
			result.Details = backend + ": " + result.Details
			return result
		}
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  backend,
			Duration: time.Since(start),
		}
	})
}
