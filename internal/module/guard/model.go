package guard

import (
	"time"

	"github.com/google/uuid"
)

// Tier partitions the cache by the kind of data stored and decides its
// lifetime.
type Tier string

const (
	// TierJobPosting caches extracted job postings, shared across users.
	TierJobPosting Tier = "job_posting"
	// TierSession caches short-lived per-user working state.
	TierSession Tier = "session"
	// TierContent caches generated content per user.
	TierContent Tier = "content"
	// TierSystem caches configuration-like values that never expire.
	TierSystem Tier = "system"
)

// Shared reports whether entries in this tier are visible to all
// users. Shared tiers are stored under the zero user id.
func (t Tier) Shared() bool {
	return t == TierJobPosting || t == TierSystem
}

// CacheEntry is one cached value. UserID is uuid.Nil for entries shared
// across users. A nil ExpiresAt means the entry never expires.
type CacheEntry struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Key       string     `gorm:"uniqueIndex:idx_cache_identity;not null"`
	Tier      Tier       `gorm:"uniqueIndex:idx_cache_identity;not null"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_cache_identity;index"`
	Value     string     `gorm:"type:jsonb;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	Hits      int64      `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at t.
func (e *CacheEntry) Expired(t time.Time) bool {
	return e.ExpiresAt != nil && !t.Before(*e.ExpiresAt)
}
