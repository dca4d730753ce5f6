package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aditus/server/internal/shared/config"
)

// CacheCleaner removes expired cache entries.
type CacheCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// PaymentAbandoner marks expired pending payments abandoned.
type PaymentAbandoner interface {
	AbandonExpired(ctx context.Context) (int64, error)
}

// Sweeper runs the periodic maintenance loops: the hourly cache
// cleanup and the pending-payment abandonment sweep.
type Sweeper struct {
	cache    CacheCleaner
	payments PaymentAbandoner
	cfg      *config.TaskConfig
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new sweeper.
func NewSweeper(cache CacheCleaner, payments PaymentAbandoner, cfg *config.TaskConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cache:    cache,
		payments: payments,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the sweep loops. Each loop runs its sweep once
// immediately so a restart does not postpone overdue work by a full
// interval.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, "cache_cleanup", s.cfg.CacheCleanupInterval, func(ctx context.Context) (int64, error) {
		return s.cache.CleanupExpired(ctx)
	})
	go s.loop(ctx, "payment_abandon", s.cfg.PaymentAbandonInterval, func(ctx context.Context) (int64, error) {
		return s.payments.AbandonExpired(ctx)
	})
}

// Stop halts the sweep loops and waits for in-flight sweeps.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) (int64, error)) {
	defer s.wg.Done()

	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.run(ctx, name, sweep)
	for {
		select {
		case <-ticker.C:
			s.run(ctx, name, sweep)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) run(ctx context.Context, name string, sweep func(context.Context) (int64, error)) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := sweep(runCtx)
	if err != nil {
		s.logger.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
		return
	}
	s.logger.Debug("sweep completed", zap.String("sweep", name), zap.Int64("affected", n))
}
