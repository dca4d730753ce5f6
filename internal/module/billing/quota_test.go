package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/aditus/server/internal/shared/errors"
	"github.com/aditus/server/internal/shared/metrics"
)

// usageStub answers window queries from fixed counters.
type usageStub struct {
	Repository
	hourlyRequests int64
	dailyTokens    int64
	monthlyTokens  int64
}

func (u *usageStub) CountRequests(_ context.Context, _ uuid.UUID, from, to time.Time) (int64, error) {
	return u.hourlyRequests, nil
}

func (u *usageStub) SumTokens(_ context.Context, _ uuid.UUID, from, _ time.Time) (int64, error) {
	if from.Equal(startOfMonth(testNow)) {
		return u.monthlyTokens, nil
	}
	return u.dailyTokens, nil
}

func freemiumPlan() *Plan {
	return &Plan{
		ID:             "freemium",
		Type:           PlanTypeFreemium,
		DailyTokens:    10_000,
		MonthlyTokens:  100_000,
		HourlyRequests: 10,
		Active:         true,
	}
}

// testNow is mid-month and mid-day so the daily and monthly windows
// start at distinct instants.
var testNow = time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)

func newChecker(stub *usageStub) *QuotaChecker {
	c := NewQuotaChecker(stub, nil, zap.NewNop())
	c.now = func() time.Time { return testNow }
	return c
}

func TestCheckQuotaBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		usage      usageStub
		cost       int64
		wantWindow QuotaWindow
	}{
		{
			name:  "all windows clear",
			usage: usageStub{hourlyRequests: 2, dailyTokens: 1000, monthlyTokens: 5000},
			cost:  500,
		},
		{
			name:  "exactly at daily limit allowed",
			usage: usageStub{dailyTokens: 9_400},
			cost:  600,
		},
		{
			name:       "one over daily limit denied",
			usage:      usageStub{dailyTokens: 9_401},
			cost:       600,
			wantWindow: WindowDaily,
		},
		{
			name:       "daily nearly full",
			usage:      usageStub{dailyTokens: 9_500},
			cost:       600,
			wantWindow: WindowDaily,
		},
		{
			name:  "hourly count below limit",
			usage: usageStub{hourlyRequests: 9},
			cost:  1,
		},
		{
			name:       "hourly count at limit denies next request",
			usage:      usageStub{hourlyRequests: 10},
			cost:       1,
			wantWindow: WindowHourly,
		},
		{
			name:       "monthly exhausted while daily clear",
			usage:      usageStub{dailyTokens: 100, monthlyTokens: 99_900},
			cost:       200,
			wantWindow: WindowMonthly,
		},
		{
			name:  "zero cost request passes on a full day",
			usage: usageStub{dailyTokens: 10_000},
			cost:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newChecker(&tt.usage)
			err := checker.CheckQuota(context.Background(), uuid.New(), freemiumPlan(), "extract_job", tt.cost)

			if tt.wantWindow == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsQuotaExceeded(err))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, 429, appErr.StatusCode)
			details, ok := appErr.Details.(QuotaDetails)
			require.True(t, ok)
			assert.Equal(t, tt.wantWindow, details.Window)
		})
	}
}

func TestCheckQuotaUnlimitedPlan(t *testing.T) {
	plan := &Plan{
		ID:             "premium",
		DailyTokens:    -1,
		MonthlyTokens:  -1,
		HourlyRequests: 120,
	}
	checker := newChecker(&usageStub{dailyTokens: 10_000_000, monthlyTokens: 10_000_000, hourlyRequests: 3})

	err := checker.CheckQuota(context.Background(), uuid.New(), plan, "extract_job", 1_000_000)
	assert.NoError(t, err)
}

func TestUsageWarningLevels(t *testing.T) {
	tests := []struct {
		name        string
		dailyTokens int64
		wantWarning string
		wantPercent float64
	}{
		{"quiet", 1_000, "", 10},
		{"approaching at eighty percent", 8_000, "approaching", 80},
		{"exceeded at limit", 10_000, "exceeded", 100},
		{"exceeded over limit", 12_000, "exceeded", 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newChecker(&usageStub{dailyTokens: tt.dailyTokens})
			windows, err := checker.Usage(context.Background(), uuid.New(), freemiumPlan())
			require.NoError(t, err)
			require.Len(t, windows, 3)

			var daily WindowUsage
			for _, w := range windows {
				if w.Window == WindowDaily {
					daily = w
				}
			}
			assert.Equal(t, tt.dailyTokens, daily.Used)
			assert.Equal(t, tt.wantWarning, daily.Warning)
			assert.InDelta(t, tt.wantPercent, daily.Percent, 0.01)
		})
	}
}

func TestUsageUnlimitedWindowHasNoWarning(t *testing.T) {
	plan := &Plan{ID: "premium", DailyTokens: -1, MonthlyTokens: -1, HourlyRequests: 120}
	checker := newChecker(&usageStub{dailyTokens: 5_000_000, monthlyTokens: 5_000_000})

	windows, err := checker.Usage(context.Background(), uuid.New(), plan)
	require.NoError(t, err)
	for _, w := range windows {
		if w.Window != WindowHourly {
			assert.Equal(t, int64(-1), w.Limit)
			assert.Empty(t, w.Warning)
			assert.Zero(t, w.Percent)
		}
	}
}

func TestCheckQuotaDenialCountsMetric(t *testing.T) {
	m := metrics.New("billing_quota_test")
	stub := &usageStub{dailyTokens: 10_000}
	checker := NewQuotaChecker(stub, m, zap.NewNop())
	checker.now = func() time.Time { return testNow }

	err := checker.CheckQuota(context.Background(), uuid.New(), freemiumPlan(), "extract_job", 600)
	require.Error(t, err)

	got := testutil.ToFloat64(m.QuotaDenialsTotal.WithLabelValues(string(WindowDaily), "extract_job"))
	assert.Equal(t, 1.0, got)
}
