package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/internal/models"
	"github.com/twentyfive/authgate/pkg/logger"
)

// ErrUserNotFound is returned when a user id does not resolve.
var ErrUserNotFound = errors.New("account service: user not found")

// AccountService resolves OAuth profiles to users and maintains the account links.
type AccountService struct {
	db           *gorm.DB
	verification *EmailVerificationService
	log          *zap.Logger
}

// NewAccountService constructs the resolver. verification may be nil when the
// email workflow is disabled.
func NewAccountService(db *gorm.DB, verification *EmailVerificationService) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	return &AccountService{
		db:           db,
		verification: verification,
		log:          logger.WithModule("accounts"),
	}, nil
}

// ResolveGoogle finds the user behind a screened Google profile, creating it
// unverified on first sign-in, links the account and runs the verification branch.
func (s *AccountService) ResolveGoogle(ctx context.Context, profile providers.Identity) (*models.User, error) {
	provider := strings.TrimSpace(profile.Provider)
	if provider == "" {
		provider = providers.GoogleName
	}
	subject := strings.TrimSpace(profile.Subject)
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if subject == "" {
		return nil, errors.New("account service: profile subject is required")
	}
	if email == "" {
		return nil, errors.New("account service: profile email is required")
	}

	user, err := s.findByAccount(ctx, provider, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.findOrCreateByEmail(ctx, email, profile)
		if err != nil {
			return nil, err
		}
	}

	if err := s.linkAccount(ctx, user.ID, provider, subject, profile.Grant); err != nil {
		return nil, err
	}

	if s.verification != nil {
		if err := s.verification.HandleSignIn(ctx, user); err != nil {
			// The user stays unverified and the next sign-in retries.
			s.log.Warn("verification email not sent", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user, nil
}

// FindByID loads a user by primary key.
func (s *AccountService) FindByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find user: %w", err)
	}
	return &user, nil
}

func (s *AccountService) findByAccount(ctx context.Context, provider, subject string) (*models.User, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, subject).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find account: %w", err)
	}

	user, err := s.FindByID(ctx, account.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

func (s *AccountService) findOrCreateByEmail(ctx context.Context, email string, profile providers.Identity) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", email).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account service: find user by email: %w", err)
	}

	user = models.User{
		Name:  strings.TrimSpace(profile.DisplayName),
		Email: &email,
		Image: strings.TrimSpace(profile.AvatarURL),
	}
	if err := db.Create(&user).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("account service: create user: %w", err)
		}
		var existing models.User
		if err := db.Where("email = ?", email).Take(&existing).Error; err != nil {
			return nil, fmt.Errorf("account service: find user by email: %w", err)
		}
		return &existing, nil
	}

	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("provider", profile.Provider))
	return &user, nil
}

func (s *AccountService) linkAccount(ctx context.Context, userID, provider, subject string, grant providers.Grant) error {
	account := models.Account{
		UserID:            userID,
		Type:              "oauth",
		Provider:          provider,
		ProviderAccountID: subject,
		AccessToken:       grant.AccessToken,
		RefreshToken:      grant.RefreshToken,
		TokenType:         grant.TokenType,
		Scope:             grant.Scope,
		IDToken:           grant.IDToken,
	}
	if !grant.Expiry.IsZero() {
		expires := grant.Expiry.Unix()
		account.ExpiresAt = &expires
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "token_type", "scope", "id_token", "updated_at",
		}),
	}).Create(&account).Error
	if err != nil {
		return fmt.Errorf("account service: link account: %w", err)
	}
	return nil
}
