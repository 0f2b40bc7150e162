package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/models"
	"github.com/twentyfive/authgate/internal/ratelimit"
	"github.com/twentyfive/authgate/pkg/crypto"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/metrics"
)

const (
	defaultOTPTTL          = 5 * time.Minute
	defaultOTPRequestLimit = 5
	defaultOTPVerifyLimit  = 10
	otpDigits              = 6
)

var (
	// ErrOTPInvalid covers wrong codes and codes already used.
	ErrOTPInvalid = errors.New("phone otp: invalid code")
	// ErrOTPExpired is returned once for an expired code.
	ErrOTPExpired = errors.New("phone otp: code expired")
	// ErrOTPFormat rejects codes that are not exactly six digits.
	ErrOTPFormat = errors.New("phone otp: code must be six digits")
	// ErrOTPRateLimited is returned when the phone exhausted its attempts for the window.
	ErrOTPRateLimited = errors.New("phone otp: too many attempts")
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// KeyHasher computes a keyed digest. Satisfied by *auth.Hasher.
type KeyHasher interface {
	Hash(value string) string
}

// OTPRequest is returned after a code was issued.
type OTPRequest struct {
	MaskedPhone string
	Code        string
	ExpiresAt   time.Time
}

// PhoneIdentity is the user resolved by a successful verification.
type PhoneIdentity struct {
	User     *models.User
	Masked   string
	LastFour string
}

// OTPOption customises the PhoneOTPService.
type OTPOption func(*PhoneOTPService)

// WithOTPTTL overrides the code lifetime.
func WithOTPTTL(d time.Duration) OTPOption {
	return func(s *PhoneOTPService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithOTPLimiter enables per-phone rate limiting of requests and verifications.
func WithOTPLimiter(limiter ratelimit.Limiter, requestLimit, verifyLimit int) OTPOption {
	return func(s *PhoneOTPService) {
		s.limiter = limiter
		if requestLimit > 0 {
			s.requestLimit = requestLimit
		}
		if verifyLimit > 0 {
			s.verifyLimit = verifyLimit
		}
	}
}

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *PhoneOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// PhoneOTPService issues and verifies six digit passcodes for phone sign-in.
// Neither the phone number nor the code is stored in plaintext.
type PhoneOTPService struct {
	db           *gorm.DB
	tokens       *VerificationTokenService
	phoneHasher  KeyHasher
	otpHasher    KeyHasher
	limiter      ratelimit.Limiter
	requestLimit int
	verifyLimit  int
	ttl          time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewPhoneOTPService constructs the OTP workflow.
func NewPhoneOTPService(db *gorm.DB, tokens *VerificationTokenService, phoneHasher, otpHasher KeyHasher, opts ...OTPOption) (*PhoneOTPService, error) {
	if db == nil {
		return nil, errors.New("phone otp service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("phone otp service: token store is required")
	}
	if phoneHasher == nil || otpHasher == nil {
		return nil, errors.New("phone otp service: hashers are required")
	}

	service := &PhoneOTPService{
		db:           db,
		tokens:       tokens,
		phoneHasher:  phoneHasher,
		otpHasher:    otpHasher,
		requestLimit: defaultOTPRequestLimit,
		verifyLimit:  defaultOTPVerifyLimit,
		ttl:          defaultOTPTTL,
		now:          time.Now,
		log:          logger.WithModule("phone_otp"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Request issues a new code for the phone, superseding any outstanding one.
func (s *PhoneOTPService) Request(ctx context.Context, rawPhone string) (*OTPRequest, error) {
	phone, err := auth.NormalizePhone(rawPhone)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}
	phoneHash := s.phoneHasher.Hash(phone)

	if err := s.allow(ctx, "otp-request:"+phoneHash, s.requestLimit); err != nil {
		metrics.OTPRequests.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	code, err := crypto.GenerateNumericCode(otpDigits)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("phone otp service: generate code: %w", err)
	}

	record, err := s.tokens.Issue(ctx, phoneHash, s.otpHasher.Hash(code), s.ttl)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("phone otp service: %w", err)
	}

	metrics.OTPRequests.WithLabelValues("issued").Inc()
	return &OTPRequest{
		MaskedPhone: auth.MaskPhone(phone),
		Code:        code,
		ExpiresAt:   record.Expires,
	}, nil
}

// Verify consumes the code and returns the phone user, creating it on first sign-in.
func (s *PhoneOTPService) Verify(ctx context.Context, rawPhone, code string) (*PhoneIdentity, error) {
	phone, err := auth.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if !otpPattern.MatchString(code) {
		return nil, ErrOTPFormat
	}

	phoneHash := s.phoneHasher.Hash(phone)
	if err := s.allow(ctx, "otp-verify:"+phoneHash, s.verifyLimit); err != nil {
		return nil, err
	}

	if _, err := s.tokens.Consume(ctx, phoneHash, s.otpHasher.Hash(code)); err != nil {
		switch {
		case errors.Is(err, ErrTokenInvalid):
			return nil, ErrOTPInvalid
		case errors.Is(err, ErrTokenExpired):
			return nil, ErrOTPExpired
		default:
			return nil, err
		}
	}

	lastFour := auth.LastFour(phone)
	user, err := s.resolveUser(ctx, phoneHash, lastFour)
	if err != nil {
		return nil, err
	}

	masked := auth.MaskPhoneLastFour(user.PhoneNumberLast4)
	if user.PhoneNumberLast4 == "" {
		masked = auth.MaskPhone(phone)
	}

	return &PhoneIdentity{User: user, Masked: masked, LastFour: lastFour}, nil
}

func (s *PhoneOTPService) allow(ctx context.Context, key string, limit int) error {
	if s.limiter == nil {
		return nil
	}
	result, err := s.limiter.Check(ctx, key, limit)
	if err != nil {
		return fmt.Errorf("phone otp service: rate limit: %w", err)
	}
	if !result.Allowed {
		metrics.RateLimitDenials.WithLabelValues(strings.SplitN(key, ":", 2)[0]).Inc()
		return ErrOTPRateLimited
	}
	return nil
}

func (s *PhoneOTPService) resolveUser(ctx context.Context, phoneHash, lastFour string) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("phone_number_hash = ?", phoneHash).Take(&user).Error
	switch {
	case err == nil:
		if user.PhoneNumberLast4 == "" {
			if err := db.Model(&user).Update("phone_number_last4", lastFour).Error; err != nil {
				return nil, fmt.Errorf("phone otp service: backfill last four: %w", err)
			}
			user.PhoneNumberLast4 = lastFour
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("phone otp service: find user: %w", err)
	}

	hash := phoneHash
	user = models.User{
		Name:             "Phone User " + lastFour,
		PhoneNumberHash:  &hash,
		PhoneNumberLast4: lastFour,
	}
	if err := db.Create(&user).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("phone otp service: create user: %w", err)
		}
		// A concurrent verification for the same phone created the row first.
		var existing models.User
		if err := db.Where("phone_number_hash = ?", phoneHash).Take(&existing).Error; err != nil {
			return nil, fmt.Errorf("phone otp service: find user: %w", err)
		}
		return &existing, nil
	}

	s.log.Info("phone user created", zap.String("user_id", user.ID), zap.String("last4", lastFour))
	return &user, nil
}
