package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/twentyfive/authgate/internal/models"
)

var errDatabaseStoreNil = errors.New("cache: database store not initialised")

// DatabaseStore keeps fixed-window counters in the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB, opts ...Option) *DatabaseStore {
	if db == nil {
		return nil
	}
	o := buildOptions(opts)
	return &DatabaseStore{db: db, now: o.now}
}

// Hit applies a fixed-window attempt under a row lock.
func (s *DatabaseStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (HitResult, error) {
	if s == nil {
		return HitResult{}, errDatabaseStoreNil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var result HitResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent first hits converge on one already expired seed row and
		// then serialise on its lock.
		seed := models.CacheEntry{Key: key, Value: []byte("0")}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var entry models.CacheEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "key = ?", key).Error; err != nil {
			return err
		}

		if now.After(entry.ExpiresAt) {
			result = HitResult{Count: 1, ResetAt: now.Add(window), Allowed: true}
			entry.Value = []byte("1")
			entry.ExpiresAt = result.ResetAt
			return tx.Save(&entry).Error
		}

		current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
		if current >= limit {
			result = HitResult{Count: current, ResetAt: entry.ExpiresAt, Allowed: false}
			return nil
		}

		result = HitResult{Count: current + 1, ResetAt: entry.ExpiresAt, Allowed: true}
		entry.Value = []byte(strconv.FormatInt(result.Count, 10))
		return tx.Save(&entry).Error
	})
	if err != nil {
		return HitResult{}, err
	}

	return result, nil
}

// PurgeExpired removes counters whose window closed before now.
func (s *DatabaseStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	res := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}
