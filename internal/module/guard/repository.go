package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss is returned when no entry exists for a lookup.
var ErrCacheMiss = errors.New("cache miss")

// Repository defines the interface for cache persistence.
type Repository interface {
	// Get returns the entry for (key, tier, userID) or ErrCacheMiss.
	Get(ctx context.Context, key string, tier Tier, userID uuid.UUID) (*CacheEntry, error)

	// Upsert stores an entry, replacing value and expiry on conflict.
	Upsert(ctx context.Context, entry *CacheEntry) error

	// IncrementHits bumps the hit counter for an entry.
	IncrementHits(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes entries past their expiry and returns how
	// many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteByUser removes all of a user's entries.
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, key string, tier Tier, userID uuid.UUID) (*CacheEntry, error) {
	var entry CacheEntry
	err := r.db.WithContext(ctx).
		Where("key = ? AND tier = ? AND user_id = ?", key, tier, userID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Upsert(ctx context.Context, entry *CacheEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}, {Name: "tier"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value", "expires_at", "updated_at",
		}),
	}).Create(entry).Error
}

func (r *repository) IncrementHits(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&CacheEntry{}).
		Where("id = ?", id).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&CacheEntry{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&CacheEntry{})
	return result.RowsAffected, result.Error
}
