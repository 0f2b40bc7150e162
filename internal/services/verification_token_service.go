package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/twentyfive/authgate/internal/models"
)

var (
	// ErrTokenInvalid covers both a wrong token and no outstanding token for the identifier.
	ErrTokenInvalid = errors.New("verification token: invalid")
	// ErrTokenExpired is reported once for an expired token; the record is removed.
	ErrTokenExpired = errors.New("verification token: expired")
)

// TokenOption customises the VerificationTokenService.
type TokenOption func(*VerificationTokenService)

// WithTokenClock injects a custom time source.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(s *VerificationTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationTokenService stores single-use, expiring tokens keyed by an identifier.
type VerificationTokenService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewVerificationTokenService constructs the token store.
func NewVerificationTokenService(db *gorm.DB, opts ...TokenOption) (*VerificationTokenService, error) {
	if db == nil {
		return nil, errors.New("verification token service: db is required")
	}

	service := &VerificationTokenService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Issue replaces any token held for identifier with a new one. The delete and
// insert share a transaction and the insert upserts on the identifier key, so
// racing issuers leave exactly one row (last writer wins).
func (s *VerificationTokenService) Issue(ctx context.Context, identifier, token string, ttl time.Duration) (*models.VerificationToken, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("verification token service: identifier is required")
	}
	if token == "" {
		return nil, errors.New("verification token service: token is required")
	}
	if ttl <= 0 {
		return nil, errors.New("verification token service: ttl must be positive")
	}

	record := &models.VerificationToken{
		Identifier: identifier,
		Token:      token,
		Expires:    s.now().Add(ttl),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identifier = ?", identifier).Delete(&models.VerificationToken{}).Error; err != nil {
			return fmt.Errorf("delete existing: %w", err)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires"}),
		}).Create(record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("verification token service: issue: %w", err)
	}

	return record, nil
}

// Consume looks up (identifier, token) and deletes it. Only the caller whose
// delete affected the row wins; everyone else observes ErrTokenInvalid.
// An expired match is deleted and reported as ErrTokenExpired.
func (s *VerificationTokenService) Consume(ctx context.Context, identifier, token string) (*models.VerificationToken, error) {
	if strings.TrimSpace(identifier) == "" || token == "" {
		return nil, ErrTokenInvalid
	}

	var (
		record  models.VerificationToken
		outcome error
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("identifier = ? AND token = ?", identifier, token).Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome = ErrTokenInvalid
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Where("identifier = ? AND token = ?", identifier, token).Delete(&models.VerificationToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = ErrTokenInvalid
			return nil
		}

		if record.Expired(s.now()) {
			outcome = ErrTokenExpired
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verification token service: consume: %w", err)
	}
	if outcome != nil {
		return nil, outcome
	}

	return &record, nil
}

// PurgeExpired deletes tokens that expired before now and were never consumed.
func (s *VerificationTokenService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires < ?", now).Delete(&models.VerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("verification token service: purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
