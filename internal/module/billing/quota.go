package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aditus/server/internal/shared/errors"
	"github.com/aditus/server/internal/shared/metrics"
)

// QuotaWindow identifies the time range a limit applies to.
type QuotaWindow string

const (
	WindowHourly  QuotaWindow = "hourly"
	WindowDaily   QuotaWindow = "daily"
	WindowMonthly QuotaWindow = "monthly"
)

// QuotaDetails is the structured payload carried by a quota denial.
type QuotaDetails struct {
	Window QuotaWindow `json:"window"`
	Used   int64       `json:"used"`
	Limit  int64       `json:"limit"`
}

// QuotaChecker evaluates plan limits against recorded usage. Usage per
// window is derived by time-range queries over usage rows; nothing is
// reset when a window boundary passes.
type QuotaChecker struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewQuotaChecker creates a new quota checker.
func NewQuotaChecker(repo Repository, m *metrics.Metrics, logger *zap.Logger) *QuotaChecker {
	return &QuotaChecker{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckQuota verifies that adding estimatedCost tokens keeps the user
// within every window of their plan. Usage exactly at a limit is allowed;
// one unit over is denied. The check itself records nothing; usage is
// written after the metered operation completes.
func (c *QuotaChecker) CheckQuota(ctx context.Context, userID uuid.UUID, plan *Plan, taskType string, estimatedCost int64) error {
	now := c.now()

	if !plan.IsUnlimitedHourlyRequests() {
		from := now.Truncate(time.Hour)
		count, err := c.repo.CountRequests(ctx, userID, from, now)
		if err != nil {
			return fmt.Errorf("count hourly requests: %w", err)
		}
		if count+1 > plan.HourlyRequests {
			return c.quotaDenied(WindowHourly, taskType, count, plan.HourlyRequests)
		}
	}

	if !plan.IsUnlimitedDailyTokens() {
		from := startOfDay(now)
		used, err := c.repo.SumTokens(ctx, userID, from, now)
		if err != nil {
			return fmt.Errorf("sum daily tokens: %w", err)
		}
		if used+estimatedCost > plan.DailyTokens {
			return c.quotaDenied(WindowDaily, taskType, used, plan.DailyTokens)
		}
	}

	if !plan.IsUnlimitedMonthlyTokens() {
		from := startOfMonth(now)
		used, err := c.repo.SumTokens(ctx, userID, from, now)
		if err != nil {
			return fmt.Errorf("sum monthly tokens: %w", err)
		}
		if used+estimatedCost > plan.MonthlyTokens {
			return c.quotaDenied(WindowMonthly, taskType, used, plan.MonthlyTokens)
		}
	}

	return nil
}

// WindowUsage reports current usage and limit for one window.
type WindowUsage struct {
	Window  QuotaWindow `json:"window"`
	Used    int64       `json:"used"`
	Limit   int64       `json:"limit"` // -1 for unlimited
	Percent float64     `json:"percent"`
	Warning string      `json:"warning,omitempty"` // "", "approaching", "exceeded"
}

// Usage returns per-window usage for the user under the given plan.
func (c *QuotaChecker) Usage(ctx context.Context, userID uuid.UUID, plan *Plan) ([]WindowUsage, error) {
	now := c.now()

	hourly, err := c.repo.CountRequests(ctx, userID, now.Truncate(time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("count hourly requests: %w", err)
	}
	daily, err := c.repo.SumTokens(ctx, userID, startOfDay(now), now)
	if err != nil {
		return nil, fmt.Errorf("sum daily tokens: %w", err)
	}
	monthly, err := c.repo.SumTokens(ctx, userID, startOfMonth(now), now)
	if err != nil {
		return nil, fmt.Errorf("sum monthly tokens: %w", err)
	}

	return []WindowUsage{
		windowUsage(WindowHourly, hourly, plan.HourlyRequests),
		windowUsage(WindowDaily, daily, plan.DailyTokens),
		windowUsage(WindowMonthly, monthly, plan.MonthlyTokens),
	}, nil
}

func windowUsage(window QuotaWindow, used, limit int64) WindowUsage {
	u := WindowUsage{Window: window, Used: used, Limit: limit}
	if limit <= 0 {
		return u
	}
	u.Percent = float64(used) / float64(limit) * 100
	switch {
	case used >= limit:
		u.Warning = "exceeded"
	case u.Percent >= 80:
		u.Warning = "approaching"
	}
	return u
}

func (c *QuotaChecker) quotaDenied(window QuotaWindow, taskType string, used, limit int64) error {
	if c.metrics != nil {
		c.metrics.QuotaDenialsTotal.WithLabelValues(string(window), taskType).Inc()
	}
	return apperrors.QuotaExceeded(
		fmt.Sprintf("%s quota exceeded", window),
		QuotaDetails{Window: window, Used: used, Limit: limit},
	)
}

// IsQuotaExceeded reports whether err is a quota denial.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, apperrors.ErrQuotaExceeded)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
