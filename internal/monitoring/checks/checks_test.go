package checks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twentyfive/authgate/internal/database/testutil"
	"github.com/twentyfive/authgate/internal/monitoring"
	"github.com/twentyfive/authgate/internal/monitoring/checks"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = checks.Database(nil, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Equal(t, "database not configured", result.Details)
}

func TestCacheCheck(t *testing.T) {
	result := checks.Cache("memory", nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "memory", result.Details)

	ok := pingerFunc(func(context.Context) error { return nil })
	result = checks.Cache("redis", ok, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	refused := pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	result = checks.Cache("redis", refused, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Equal(t, "redis: connection refused", result.Details)

	slow := pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	result = checks.Cache("redis", slow, 10*time.Millisecond).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	tracker := monitoring.NewJobTracker()
	check := checks.Maintenance(tracker.Snapshot, time.Hour)

	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "no maintenance jobs registered", result.Details)

	tracker.Record("verification_tokens", time.Now(), nil)
	result = check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Empty(t, result.Details)

	tracker.Record("rate_limits", time.Now(), errors.New("database is locked"))
	result = check.Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "rate_limits: database is locked")

	stale := monitoring.NewJobTracker()
	stale.Record("verification_tokens", time.Now().Add(-2*time.Hour), nil)
	result = checks.Maintenance(stale.Snapshot, time.Hour).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "stale run")
}
