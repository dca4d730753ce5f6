package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceInterface defines the billing service interface.
type ServiceInterface interface {
	// Plan operations
	ListPlans(ctx context.Context) ([]*Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)

	// Subscription operations
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	ActivateFromPayment(ctx context.Context, userID uuid.UUID, planID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Quota operations
	EffectivePlan(ctx context.Context, userID uuid.UUID) (*Plan, error)
	CheckQuota(ctx context.Context, userID uuid.UUID, taskType string, estimatedCost int64) error
	GetQuotaStatus(ctx context.Context, userID uuid.UUID) (*QuotaStatusResponse, error)

	// Usage operations
	RecordUsage(ctx context.Context, record *UsageRecord) error
}

// Service implements billing operations.
type Service struct {
	repo    Repository
	checker *QuotaChecker
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new billing service.
func NewService(repo Repository, checker *QuotaChecker, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		checker: checker,
		logger:  logger,
		now:     time.Now,
	}
}

// --- Plan Operations ---

func (s *Service) ListPlans(ctx context.Context) ([]*Plan, error) {
	return s.repo.ListActivePlans(ctx)
}

func (s *Service) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	return s.repo.GetPlan(ctx, planID)
}

// --- Subscription Operations ---

// GetSubscription returns the user's subscription with its plan loaded.
// A subscription whose end time has elapsed is reported as expired;
// expiry is evaluated here, at read time.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.repo.GetSubscriptionWithPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == SubscriptionStatusActive && !s.now().Before(sub.EndsAt) {
		sub.Status = SubscriptionStatusExpired
	}
	return sub, nil
}

// ActivateFromPayment creates or extends the user's subscription after a
// successful payment. Extending an active subscription adds the plan
// duration to its end time rather than restarting the period.
func (s *Service) ActivateFromPayment(ctx context.Context, userID uuid.UUID, planID string) (*Subscription, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanNotActive
	}

	now := s.now()
	duration := time.Duration(plan.DurationDays) * 24 * time.Hour

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
		sub = &Subscription{
			ID:       uuid.New(),
			UserID:   userID,
			PlanID:   planID,
			Status:   SubscriptionStatusActive,
			StartsAt: now,
			EndsAt:   now.Add(duration),
		}
		if err := s.repo.CreateSubscription(ctx, sub); err != nil {
			return nil, err
		}
		s.logger.Info("subscription created",
			zap.String("user_id", userID.String()),
			zap.String("plan_id", planID),
		)
		sub.Plan = plan
		return sub, nil
	}

	if sub.IsActive(now) {
		// Still running: stack the new period on top of the old one.
		sub.EndsAt = sub.EndsAt.Add(duration)
	} else {
		sub.StartsAt = now
		sub.EndsAt = now.Add(duration)
	}
	sub.PlanID = planID
	sub.Status = SubscriptionStatusActive
	sub.CancelledAt = nil

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription extended",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", planID),
		zap.Time("ends_at", sub.EndsAt),
	)
	sub.Plan = plan
	return sub, nil
}

// CancelSubscription marks the user's subscription cancelled.
func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub.Status = SubscriptionStatusCancelled
	sub.CancelledAt = &now
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// --- Quota Operations ---

// EffectivePlan resolves the plan quota limits apply under: the active
// subscription's plan, or freemium when there is none.
func (s *Service) EffectivePlan(ctx context.Context, userID uuid.UUID) (*Plan, error) {
	sub, err := s.repo.GetSubscriptionWithPlan(ctx, userID)
	if err == nil && sub.IsActive(s.now()) && sub.Plan != nil {
		return sub.Plan, nil
	}
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	return s.repo.GetPlan(ctx, string(PlanTypeFreemium))
}

func (s *Service) CheckQuota(ctx context.Context, userID uuid.UUID, taskType string, estimatedCost int64) error {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}
	return s.checker.CheckQuota(ctx, userID, plan, taskType, estimatedCost)
}

func (s *Service) GetQuotaStatus(ctx context.Context, userID uuid.UUID) (*QuotaStatusResponse, error) {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	windows, err := s.checker.Usage(ctx, userID, plan)
	if err != nil {
		return nil, err
	}
	return &QuotaStatusResponse{
		PlanID:  plan.ID,
		Windows: windows,
	}, nil
}

// --- Usage Operations ---

func (s *Service) RecordUsage(ctx context.Context, record *UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	return s.repo.CreateUsageRecord(ctx, record)
}
