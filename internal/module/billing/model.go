package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PlanType represents the subscription tier.
type PlanType string

const (
	PlanTypeFreemium PlanType = "freemium"
	PlanTypePro      PlanType = "pro"
	PlanTypePremium  PlanType = "premium"
)

// Plan represents a subscription plan with its quota limits.
// Limits use -1 for unlimited.
type Plan struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	Type         PlanType       `json:"type" gorm:"not null"`
	Name         string         `json:"name" gorm:"not null"`
	Description  string         `json:"description"`
	PriceMinor   int64          `json:"price_minor"` // minor currency units
	Currency     string         `json:"currency" gorm:"default:KES"`
	DurationDays int            `json:"duration_days" gorm:"default:30"`
	Features     pq.StringArray `json:"features" gorm:"type:text[]"`
	Active       bool           `json:"active" gorm:"default:true"`
	DisplayOrder int            `json:"display_order" gorm:"default:0"`

	// Quota limits
	DailyTokens    int64 `json:"daily_tokens" gorm:"default:0"`
	MonthlyTokens  int64 `json:"monthly_tokens" gorm:"default:0"`
	HourlyRequests int64 `json:"hourly_requests" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Plan) TableName() string {
	return "plans"
}

// IsUnlimitedDailyTokens returns true if daily tokens are unlimited.
func (p *Plan) IsUnlimitedDailyTokens() bool {
	return p.DailyTokens == -1
}

// IsUnlimitedMonthlyTokens returns true if monthly tokens are unlimited.
func (p *Plan) IsUnlimitedMonthlyTokens() bool {
	return p.MonthlyTokens == -1
}

// IsUnlimitedHourlyRequests returns true if hourly requests are unlimited.
func (p *Plan) IsUnlimitedHourlyRequests() bool {
	return p.HourlyRequests == -1
}

// SubscriptionStatus represents the status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription represents a user's subscription to a plan.
// At most one active subscription exists per user; paying again while
// active extends the end time rather than replacing the record.
type Subscription struct {
	ID          uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID          `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	PlanID      string             `json:"plan_id" gorm:"not null"`
	Status      SubscriptionStatus `json:"status" gorm:"not null;default:active"`
	StartsAt    time.Time          `json:"starts_at"`
	EndsAt      time.Time          `json:"ends_at"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`

	// Relations
	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
}

// TableName returns the database table name.
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsActive returns true if the subscription is active and unexpired at t.
// Expiry is evaluated at read time, not by a background sweep.
func (s *Subscription) IsActive(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && t.Before(s.EndsAt)
}

// UsageRecord represents a single metered AI call. Quota windows are
// computed by summing these rows over time ranges, so usage resets
// implicitly at window boundaries without any mutating reset job.
type UsageRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_user_time"`
	Timestamp time.Time `gorm:"not null;index:idx_usage_user_time"`
	RequestID string    `gorm:"not null"`
	TaskType  string    `gorm:"not null"` // extract, personalize
	Tokens    int64     `gorm:"not null;default:0"`
	LatencyMs int       `gorm:"not null;default:0"`
	Success   bool      `gorm:"not null"`
	CacheHit  bool      `gorm:"not null;default:false"`
}

// TableName returns the database table name.
func (UsageRecord) TableName() string {
	return "usage_records"
}

// DefaultPlans returns the seed plan table.
func DefaultPlans() []*Plan {
	return []*Plan{
		{
			ID:             "freemium",
			Type:           PlanTypeFreemium,
			Name:           "Freemium",
			Description:    "Get started with basic job applications",
			PriceMinor:     0,
			DurationDays:   30,
			DailyTokens:    10_000,
			MonthlyTokens:  100_000,
			HourlyRequests: 10,
			Features:       pq.StringArray{"job_extraction", "cv_personalization"},
			Active:         true,
			DisplayOrder:   0,
		},
		{
			ID:             "pro",
			Type:           PlanTypePro,
			Name:           "Pro",
			Description:    "For active job seekers",
			PriceMinor:     99_900,
			DurationDays:   30,
			DailyTokens:    100_000,
			MonthlyTokens:  1_500_000,
			HourlyRequests: 60,
			Features:       pq.StringArray{"job_extraction", "cv_personalization", "priority_support"},
			Active:         true,
			DisplayOrder:   1,
		},
		{
			ID:             "premium",
			Type:           PlanTypePremium,
			Name:           "Premium",
			Description:    "Unlimited applications",
			PriceMinor:     249_900,
			DurationDays:   30,
			DailyTokens:    -1,
			MonthlyTokens:  -1,
			HourlyRequests: 120,
			Features:       pq.StringArray{"job_extraction", "cv_personalization", "priority_support", "gmail_submission"},
			Active:         true,
			DisplayOrder:   2,
		},
	}
}
