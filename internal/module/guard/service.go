package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/module/billing"
	"github.com/aditus/server/internal/shared/config"
	"github.com/aditus/server/internal/shared/metrics"
)

// ComputeFunc produces the value to cache on a miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// Service is the guard in front of expensive operations. It owns the
// quota check, the cache lookup and the compute step so callers cannot
// reorder them.
type Service struct {
	repo    Repository
	billing billing.ServiceInterface
	cfg     *config.CacheConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new guard service.
func NewService(repo Repository, billingSvc billing.ServiceInterface, cfg *config.CacheConfig, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		billing: billingSvc,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ttl returns the lifetime for a tier. The system tier has none.
func (s *Service) ttl(tier Tier) (time.Duration, bool) {
	switch tier {
	case TierJobPosting:
		return s.cfg.JobPostingTTL, true
	case TierSession:
		return s.cfg.SessionTTL, true
	case TierContent:
		return s.cfg.ContentTTL, true
	default:
		return 0, false
	}
}

// Get looks up a cached value. Expiry is evaluated lazily at read time;
// an expired row is a miss and stays in place for the sweeper.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, key string, tier Tier) (json.RawMessage, bool, error) {
	entry, err := s.repo.Get(ctx, key, tier, userID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			s.countMiss(tier)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if entry.Expired(s.now()) {
		s.countMiss(tier)
		return nil, false, nil
	}

	if err := s.repo.IncrementHits(ctx, entry.ID); err != nil {
		s.logger.Warn("increment cache hits", zap.String("key", key), zap.Error(err))
	}
	s.countHit(tier)
	return json.RawMessage(entry.Value), true, nil
}

// Put stores a value under (key, tier, user) with the tier's lifetime.
func (s *Service) Put(ctx context.Context, userID uuid.UUID, key string, tier Tier, value json.RawMessage) error {
	entry := &CacheEntry{
		Key:    key,
		Tier:   tier,
		UserID: userID,
		Value:  string(value),
	}
	if ttl, ok := s.ttl(tier); ok {
		expires := s.now().Add(ttl)
		entry.ExpiresAt = &expires
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// GetOrCompute runs the guarded path for an expensive operation: the
// quota check happens before the cache lookup, so a user over quota is
// denied even when the answer is already cached, and compute only runs
// on a miss.
func (s *Service) GetOrCompute(ctx context.Context, userID uuid.UUID, key string, tier Tier, taskType string, estimatedCost int64, compute ComputeFunc) (json.RawMessage, bool, error) {
	if err := s.billing.CheckQuota(ctx, userID, taskType, estimatedCost); err != nil {
		return nil, false, err
	}

	// Quota is always the caller's; the cache entry belongs to the
	// caller only on per-user tiers.
	cacheUser := userID
	if tier.Shared() {
		cacheUser = uuid.Nil
	}

	if value, hit, err := s.Get(ctx, cacheUser, key, tier); err != nil {
		return nil, false, err
	} else if hit {
		return value, true, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, cacheUser, key, tier, value); err != nil {
		// The computed answer is still good; losing the cache write
		// only costs a recompute later.
		s.logger.Warn("store computed value", zap.String("key", key), zap.Error(err))
	}
	return value, false, nil
}

// CleanupExpired deletes entries past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	if n > 0 {
		s.logger.Info("cleaned expired cache entries", zap.Int64("count", n))
	}
	return n, nil
}

// InvalidateUser drops everything cached for a user.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("invalidate user cache: %w", err)
	}
	s.logger.Info("invalidated user cache",
		zap.String("user_id", userID.String()),
		zap.Int64("count", n),
	)
	return nil
}

func (s *Service) countHit(tier Tier) {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(string(tier)).Inc()
	}
}

func (s *Service) countMiss(tier Tier) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(string(tier)).Inc()
	}
}
