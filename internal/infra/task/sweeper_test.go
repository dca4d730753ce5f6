package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/shared/config"
)

type countingSweep struct {
	calls atomic.Int64
}

func (c *countingSweep) CleanupExpired(context.Context) (int64, error) {
	return c.calls.Add(1), nil
}

func (c *countingSweep) AbandonExpired(context.Context) (int64, error) {
	return c.calls.Add(1), nil
}

func TestSweeperRunsImmediatelyAndPeriodically(t *testing.T) {
	cache := &countingSweep{}
	payments := &countingSweep{}
	s := NewSweeper(cache, payments, &config.TaskConfig{
		CacheCleanupInterval:   20 * time.Millisecond,
		PaymentAbandonInterval: 20 * time.Millisecond,
	}, zap.NewNop())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return cache.calls.Load() >= 2 && payments.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweeperStopHaltsLoops(t *testing.T) {
	cache := &countingSweep{}
	payments := &countingSweep{}
	s := NewSweeper(cache, payments, &config.TaskConfig{
		CacheCleanupInterval:   10 * time.Millisecond,
		PaymentAbandonInterval: 10 * time.Millisecond,
	}, zap.NewNop())

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	after := cache.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, cache.calls.Load())
}
