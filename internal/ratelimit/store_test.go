package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twentyfive/authgate/internal/cache"
	"github.com/twentyfive/authgate/internal/database/testutil"
	"github.com/twentyfive/authgate/internal/models"
)

func TestStoreLimiterMatchesMemorySemantics(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newFakeClock()
	store := cache.NewDatabaseStore(db, cache.WithClock(clock.Now))

	limiter, err := NewStoreLimiter(store)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := limiter.Check(ctx, "phone", 3)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 3-i, res.Remaining)
	}

	denied, err := limiter.Check(ctx, "phone", 3)
	require.NoError(t, err)
	require.False(t, denied.Allowed)
	require.Zero(t, denied.Remaining)

	clock.Advance(DefaultWindow + time.Second)
	fresh, err := limiter.Check(ctx, "phone", 3)
	require.NoError(t, err)
	require.True(t, fresh.Allowed)
	require.Equal(t, 2, fresh.Remaining)

	var entry models.CacheEntry
	require.NoError(t, db.Take(&entry, "key = ?", "ratelimit:phone").Error)
	require.Equal(t, "1", string(entry.Value))
}

func TestNewStoreLimiterRequiresStore(t *testing.T) {
	_, err := NewStoreLimiter(nil)
	require.Error(t, err)
}
