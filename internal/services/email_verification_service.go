package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/twentyfive/authgate/internal/models"
	"github.com/twentyfive/authgate/pkg/crypto"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/mail"
	"github.com/twentyfive/authgate/pkg/metrics"
)

const (
	defaultVerificationExpiry     = 24 * time.Hour
	defaultVerificationTokenBytes = 32
	verificationPath              = "/auth/verify-email"
)

// VerifyOutcome is the result of visiting a verification link.
type VerifyOutcome string

const (
	VerifySuccess VerifyOutcome = "success"
	VerifyInvalid VerifyOutcome = "invalid"
	VerifyExpired VerifyOutcome = "expired"
)

// ErrNoEmail is returned when a verification is requested for a user without an email.
var ErrNoEmail = errors.New("email verification: user has no email address")

// VerificationOption customises the EmailVerificationService.
type VerificationOption func(*EmailVerificationService)

// WithVerificationBaseURL sets the base URL used in verification links.
func WithVerificationBaseURL(url string) VerificationOption {
	return func(s *EmailVerificationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithVerificationExpiry overrides the token lifetime.
func WithVerificationExpiry(d time.Duration) VerificationOption {
	return func(s *EmailVerificationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *EmailVerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithProductName sets the product name used in email copy.
func WithProductName(name string) VerificationOption {
	return func(s *EmailVerificationService) {
		s.product = strings.TrimSpace(name)
	}
}

// EmailVerificationService drives the per-user email verification state
// machine: unverified, unverified with a pending token, verified.
type EmailVerificationService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	baseURL string
	product string
	expiry  time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewEmailVerificationService constructs a verification service with the provided dependencies.
// A nil mailer behaves like disabled SMTP: links are logged instead of sent.
func NewEmailVerificationService(db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) (*EmailVerificationService, error) {
	if db == nil {
		return nil, errors.New("email verification service: db is required")
	}

	service := &EmailVerificationService{
		db:     db,
		mailer: mailer,
		expiry: defaultVerificationExpiry,
		now:    time.Now,
		log:    logger.WithModule("email_verification"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// HandleSignIn runs the post sign-in branch for a Google user. Verified users
// get a login notification; unverified users get a pending token.
func (s *EmailVerificationService) HandleSignIn(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("email verification service: user is required")
	}
	if user.IsEmailVerified() {
		s.NotifyLogin(ctx, user)
		return nil
	}
	_, err := s.EnsurePending(ctx, user)
	return err
}

// EnsurePending makes sure an unverified user has a live token. An unexpired
// token is left alone so no duplicate email goes out; otherwise a new token is
// stored and then mailed. A failed send clears the token again, so the next
// sign-in retries.
func (s *EmailVerificationService) EnsurePending(ctx context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, errors.New("email verification service: user is required")
	}
	if user.IsEmailVerified() {
		return false, nil
	}

	now := s.now()
	if user.HasPendingVerification(now) {
		return false, nil
	}

	email := user.EmailAddress()
	if email == "" {
		return false, ErrNoEmail
	}

	token, err := crypto.GenerateHexToken(defaultVerificationTokenBytes)
	if err != nil {
		return false, fmt.Errorf("email verification service: generate token: %w", err)
	}
	expires := now.Add(s.expiry)

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"verification_token":         token,
			"verification_token_expires": expires,
		})
	if res.Error != nil {
		return false, fmt.Errorf("email verification service: store token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, fmt.Errorf("email verification service: %w", gorm.ErrRecordNotFound)
	}

	// Sent outside any transaction. A failed send clears only this token.
	if err := s.send(ctx, mail.TemplateVerification, email, mail.TemplateData{
		Name: user.Name,
		Link: s.link(token),
	}); err != nil {
		reset := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.User{}).
			Where("id = ? AND verification_token = ?", user.ID, token).
			Updates(map[string]any{
				"verification_token":         nil,
				"verification_token_expires": nil,
			})
		if reset.Error != nil {
			s.log.Warn("clear unsent verification token failed", zap.String("user_id", user.ID), zap.Error(reset.Error))
		}
		return false, fmt.Errorf("email verification service: %w", err)
	}

	user.VerificationToken = &token
	user.VerificationTokenExpires = &expires
	return true, nil
}

// Verify resolves a verification link token.
// An already verified user reports success so repeated clicks are harmless.
func (s *EmailVerificationService) Verify(ctx context.Context, token string) (VerifyOutcome, *models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.EmailVerifications.WithLabelValues(string(VerifyInvalid)).Inc()
		return VerifyInvalid, nil, nil
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.EmailVerifications.WithLabelValues(string(VerifyInvalid)).Inc()
		return VerifyInvalid, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("email verification service: find user: %w", err)
	}

	if user.IsEmailVerified() {
		metrics.EmailVerifications.WithLabelValues(string(VerifySuccess)).Inc()
		return VerifySuccess, &user, nil
	}

	now := s.now()
	clearToken := map[string]any{
		"verification_token":         nil,
		"verification_token_expires": nil,
	}

	if user.VerificationTokenExpires == nil || !user.VerificationTokenExpires.After(now) {
		if err := s.db.WithContext(ctx).Model(&user).Updates(clearToken).Error; err != nil {
			return "", nil, fmt.Errorf("email verification service: clear expired token: %w", err)
		}
		user.VerificationToken = nil
		user.VerificationTokenExpires = nil
		metrics.EmailVerifications.WithLabelValues(string(VerifyExpired)).Inc()
		return VerifyExpired, &user, nil
	}

	clearToken["email_verified"] = now
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND verification_token = ?", user.ID, token).
		Updates(clearToken)
	if res.Error != nil {
		return "", nil, fmt.Errorf("email verification service: mark verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent visit consumed the token; report what the row says now.
		if err := s.db.WithContext(ctx).Take(&user, "id = ?", user.ID).Error; err != nil {
			return "", nil, fmt.Errorf("email verification service: reload user: %w", err)
		}
		if !user.IsEmailVerified() {
			metrics.EmailVerifications.WithLabelValues(string(VerifyInvalid)).Inc()
			return VerifyInvalid, nil, nil
		}
	} else {
		user.EmailVerified = &now
		user.VerificationToken = nil
		user.VerificationTokenExpires = nil

		if err := s.send(ctx, mail.TemplateWelcome, user.EmailAddress(), mail.TemplateData{Name: user.Name}); err != nil {
			s.log.Warn("welcome email failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	metrics.EmailVerifications.WithLabelValues(string(VerifySuccess)).Inc()
	return VerifySuccess, &user, nil
}

// NotifyLogin sends the sign-in notification. Failures are logged and swallowed.
func (s *EmailVerificationService) NotifyLogin(ctx context.Context, user *models.User) {
	email := user.EmailAddress()
	if email == "" {
		return
	}
	if err := s.send(ctx, mail.TemplateLoginNotification, email, mail.TemplateData{Name: user.Name}); err != nil {
		s.log.Warn("login notification failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *EmailVerificationService) link(token string) string {
	return s.baseURL + verificationPath + "?token=" + url.QueryEscape(token)
}

// send renders and delivers one template. Disabled delivery is not an error.
func (s *EmailVerificationService) send(ctx context.Context, template, to string, data mail.TemplateData) error {
	if data.Product == "" {
		data.Product = s.product
	}
	msg, err := mail.Render(template, to, data)
	if err != nil {
		return err
	}

	if s.mailer == nil {
		metrics.EmailDeliveries.WithLabelValues(template, "disabled").Inc()
		s.log.Debug("mail delivery disabled", zap.String("template", template), zap.String("link", data.Link))
		return nil
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			metrics.EmailDeliveries.WithLabelValues(template, "disabled").Inc()
			s.log.Debug("mail delivery disabled", zap.String("template", template), zap.String("link", data.Link))
			return nil
		}
		metrics.EmailDeliveries.WithLabelValues(template, "failed").Inc()
		return fmt.Errorf("send %s email: %w", template, err)
	}

	metrics.EmailDeliveries.WithLabelValues(template, "sent").Inc()
	return nil
}
