package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/database/testutil"
	"github.com/twentyfive/authgate/internal/models"
	"github.com/twentyfive/authgate/internal/ratelimit"
)

type otpFixture struct {
	db      *gorm.DB
	clock   *testClock
	svc     *PhoneOTPService
	phones  *auth.Hasher
	limiter *ratelimit.MemoryLimiter
}

func newOTPFixture(t *testing.T, opts ...OTPOption) *otpFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	tokens, err := NewVerificationTokenService(db, WithTokenClock(clock.Now))
	require.NoError(t, err)

	phones, err := auth.NewHasher("PHONE_NUMBER_SECRET", "phone-secret")
	require.NoError(t, err)
	codes, err := auth.NewHasher("OTP_SECRET", "otp-secret")
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter(ratelimit.WithClock(clock.Now))
	all := append([]OTPOption{WithOTPClock(clock.Now), WithOTPLimiter(limiter, 5, 10)}, opts...)

	svc, err := NewPhoneOTPService(db, tokens, phones, codes, all...)
	require.NoError(t, err)

	return &otpFixture{db: db, clock: clock, svc: svc, phones: phones, limiter: limiter}
}

func TestPhoneOTPRequestAndVerify(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, "+1 (555) 123-4567")
	require.NoError(t, err)
	require.Equal(t, "••••••4567", req.MaskedPhone)
	require.Len(t, req.Code, 6)
	require.Equal(t, f.clock.Now().Add(5*time.Minute), req.ExpiresAt)

	identity, err := f.svc.Verify(ctx, "+15551234567", " "+req.Code+" ")
	require.NoError(t, err)
	require.Equal(t, "••••••4567", identity.Masked)
	require.Equal(t, "4567", identity.LastFour)
	require.Equal(t, "Phone User 4567", identity.User.Name)

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", identity.User.ID).Error)
	require.NotNil(t, stored.PhoneNumberHash)
	require.Equal(t, f.phones.Hash("+15551234567"), *stored.PhoneNumberHash)
	require.NotContains(t, *stored.PhoneNumberHash, "5551234567")
	require.Equal(t, "4567", stored.PhoneNumberLast4)

	var tokens []models.VerificationToken
	require.NoError(t, f.db.Find(&tokens).Error)
	require.Empty(t, tokens)
}

func TestPhoneOTPStoresOnlyHashes(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)

	var token models.VerificationToken
	require.NoError(t, f.db.Take(&token).Error)
	require.NotEqual(t, req.Code, token.Token)
	require.NotContains(t, token.Identifier, "5551234567")
}

func TestPhoneOTPSecondRequestInvalidatesFirst(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	first, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)
	second, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)

	if first.Code != second.Code {
		_, err = f.svc.Verify(ctx, "+15551234567", first.Code)
		require.ErrorIs(t, err, ErrOTPInvalid)
	}

	_, err = f.svc.Verify(ctx, "+15551234567", second.Code)
	require.NoError(t, err)
}

func TestPhoneOTPExpiredCodeThenFreshRequest(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	_, err = f.svc.Verify(ctx, "+15551234567", req.Code)
	require.ErrorIs(t, err, ErrOTPExpired)

	_, err = f.svc.Verify(ctx, "+15551234567", req.Code)
	require.ErrorIs(t, err, ErrOTPInvalid)

	fresh, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, "+15551234567", fresh.Code)
	require.NoError(t, err)
}

func TestPhoneOTPCodeIsSingleUse(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "+15551234567", req.Code)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, "+15551234567", req.Code)
	require.ErrorIs(t, err, ErrOTPInvalid)
}

func TestPhoneOTPRejectsMalformedInput(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "12345")
	require.ErrorIs(t, err, auth.ErrInvalidPhoneNumber)

	_, err = f.svc.Verify(ctx, "12345", "123456")
	require.ErrorIs(t, err, auth.ErrInvalidPhoneNumber)

	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456", "１２３４５６"} {
		_, err = f.svc.Verify(ctx, "+15551234567", code)
		require.ErrorIs(t, err, ErrOTPFormat, "code %q", code)
	}
}

func TestPhoneOTPWrongCodeWithoutRequestIsInvalid(t *testing.T) {
	f := newOTPFixture(t)

	_, err := f.svc.Verify(context.Background(), "+15551234567", "123456")
	require.ErrorIs(t, err, ErrOTPInvalid)
}

func TestPhoneOTPRequestRateLimited(t *testing.T) {
	f := newOTPFixture(t)
	f.svc.requestLimit = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Request(ctx, "+15551234567")
		require.NoError(t, err)
	}
	_, err := f.svc.Request(ctx, "+15551234567")
	require.ErrorIs(t, err, ErrOTPRateLimited)

	_, err = f.svc.Request(ctx, "+15559876543")
	require.NoError(t, err)

	f.clock.Advance(ratelimit.DefaultWindow + time.Second)
	_, err = f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)
}

func TestPhoneOTPVerifyRateLimited(t *testing.T) {
	f := newOTPFixture(t)
	f.svc.verifyLimit = 3
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Verify(ctx, "+15551234567", "000000")
		require.ErrorIs(t, err, ErrOTPInvalid)
	}
	_, err := f.svc.Verify(ctx, "+15551234567", "000000")
	require.ErrorIs(t, err, ErrOTPRateLimited)
}

func TestPhoneOTPReusesExistingUserAndBackfillsLastFour(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	hash := f.phones.Hash("+15551234567")
	existing := models.User{Name: "Jane", PhoneNumberHash: &hash}
	require.NoError(t, f.db.Create(&existing).Error)

	req, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)
	identity, err := f.svc.Verify(ctx, "+15551234567", req.Code)
	require.NoError(t, err)

	require.Equal(t, existing.ID, identity.User.ID)
	require.Equal(t, "Jane", identity.User.Name)
	require.Equal(t, "4567", identity.User.PhoneNumberLast4)

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", existing.ID).Error)
	require.Equal(t, "4567", stored.PhoneNumberLast4)
}

func TestPhoneOTPConcurrentVerifyHasOneWinner(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	req, err := f.svc.Request(ctx, "+15551234567")
	require.NoError(t, err)

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(ctx, "+15551234567", req.Code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			assert.ErrorIs(t, err, ErrOTPInvalid)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestNewPhoneOTPServiceValidatesDependencies(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	tokens, err := NewVerificationTokenService(db)
	require.NoError(t, err)

	_, err = NewPhoneOTPService(nil, tokens, prefixHasher("p"), prefixHasher("o"))
	require.Error(t, err)
	_, err = NewPhoneOTPService(db, nil, prefixHasher("p"), prefixHasher("o"))
	require.Error(t, err)
	_, err = NewPhoneOTPService(db, tokens, nil, prefixHasher("o"))
	require.Error(t, err)
}
