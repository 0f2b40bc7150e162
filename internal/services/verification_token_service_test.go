package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twentyfive/authgate/internal/database/testutil"
	"github.com/twentyfive/authgate/internal/models"
)

func newTokenService(t *testing.T, clock *testClock) *VerificationTokenService {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewVerificationTokenService(db, WithTokenClock(clock.Now))
	require.NoError(t, err)
	return svc
}

func TestVerificationTokenConsumeIsSingleUse(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "phone-hash", "code-hash", 5*time.Minute)
	require.NoError(t, err)

	record, err := svc.Consume(ctx, "phone-hash", "code-hash")
	require.NoError(t, err)
	require.Equal(t, "phone-hash", record.Identifier)

	_, err = svc.Consume(ctx, "phone-hash", "code-hash")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerificationTokenIssueSupersedesPrevious(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "phone-hash", "first", 5*time.Minute)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "phone-hash", "second", 5*time.Minute)
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.db.Model(&models.VerificationToken{}).Where("identifier = ?", "phone-hash").Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = svc.Consume(ctx, "phone-hash", "first")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Consume(ctx, "phone-hash", "second")
	require.NoError(t, err)
}

func TestVerificationTokenExpiredThenInvalid(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "phone-hash", "code", 5*time.Minute)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	_, err = svc.Consume(ctx, "phone-hash", "code")
	require.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.Consume(ctx, "phone-hash", "code")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerificationTokenWrongTokenKeepsRecord(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "id", "right", time.Minute)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, "id", "wrong")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Consume(ctx, "id", "right")
	require.NoError(t, err)
}

func TestVerificationTokenConcurrentConsumeHasOneWinner(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "id", "tok", time.Minute)
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		invalids int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, "id", "tok")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			default:
				assert.ErrorIs(t, err, ErrTokenInvalid)
				invalids++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.Equal(t, workers-1, invalids)
}

func TestVerificationTokenPurgeExpired(t *testing.T) {
	clock := newTestClock()
	svc := newTokenService(t, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "short", "a", time.Minute)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "long", "b", time.Hour)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	removed, err := svc.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = svc.Consume(ctx, "long", "b")
	require.NoError(t, err)
}

func TestVerificationTokenIssueValidatesInput(t *testing.T) {
	svc := newTokenService(t, newTestClock())
	ctx := context.Background()

	_, err := svc.Issue(ctx, "", "tok", time.Minute)
	require.Error(t, err)
	_, err = svc.Issue(ctx, "id", "", time.Minute)
	require.Error(t, err)
	_, err = svc.Issue(ctx, "id", "tok", 0)
	require.Error(t, err)
}
