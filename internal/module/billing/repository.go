package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for billing data access.
type Repository interface {
	// Plan operations
	ListActivePlans(ctx context.Context) ([]*Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	SeedPlans(ctx context.Context, plans []*Plan) error

	// Subscription operations
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetSubscriptionWithPlan(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	CreateSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// Usage operations
	CreateUsageRecord(ctx context.Context, record *UsageRecord) error
	SumTokens(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
	CountRequests(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new billing repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Plan Operations ---

func (r *repository) ListActivePlans(ctx context.Context) ([]*Plan, error) {
	var plans []*Plan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("display_order ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (r *repository) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	var plan Plan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &plan, nil
}

func (r *repository) SeedPlans(ctx context.Context, plans []*Plan) error {
	for _, plan := range plans {
		var count int64
		if err := r.db.WithContext(ctx).Model(&Plan{}).Where("id = ?", plan.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check plan %s: %w", plan.ID, err)
		}
		if count > 0 {
			continue
		}
		if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
			return fmt.Errorf("seed plan %s: %w", plan.ID, err)
		}
	}
	return nil
}

// --- Subscription Operations ---

func (r *repository) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

func (r *repository) GetSubscriptionWithPlan(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).Preload("Plan").First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription with plan: %w", err)
	}
	return &sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (r *repository) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// --- Usage Operations ---

func (r *repository) CreateUsageRecord(ctx context.Context, record *UsageRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

func (r *repository) SumTokens(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("COALESCE(SUM(tokens), 0)").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, from, to).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum tokens: %w", err)
	}
	return total, nil
}

func (r *repository) CountRequests(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}
