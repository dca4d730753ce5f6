package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for payment persistence.
type Repository interface {
	// CreatePayment stores a new payment.
	CreatePayment(ctx context.Context, p *Payment) error

	// GetPayment returns a payment by ID.
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetPaymentByReference returns a payment by its processor reference.
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)

	// ListPaymentsByUser returns a user's payments, newest first.
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, error)

	// TransitionStatus moves a payment out of pending in a single
	// conditional update. It reports whether this call won the
	// transition; false means another writer already settled the row.
	TransitionStatus(ctx context.Context, reference string, to Status, completedAt *time.Time, failureReason string) (bool, error)

	// AppendTransactionLog stores one processor interaction.
	AppendTransactionLog(ctx context.Context, log *TransactionLog) error

	// CreateWebhookEvent stores a delivered webhook. A duplicate EventID
	// returns ErrDuplicateEvent.
	CreateWebhookEvent(ctx context.Context, event *WebhookEvent) error

	// MarkWebhookEventProcessed records the outcome of handling an event.
	MarkWebhookEventProcessed(ctx context.Context, eventID string, handleErr error) error

	// AbandonExpired marks pending payments whose expiry has passed as
	// abandoned and returns how many rows changed.
	AbandonExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).First(&p, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, error) {
	var payments []*Payment
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) TransitionStatus(ctx context.Context, reference string, to Status, completedAt *time.Time, failureReason string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}

	// The status guard in the WHERE clause makes concurrent settlers
	// race on rows affected instead of double-applying effects.
	result := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("reference = ? AND status = ?", reference, StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) AppendTransactionLog(ctx context.Context, log *TransactionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) CreateWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *repository) MarkWebhookEventProcessed(ctx context.Context, eventID string, handleErr error) error {
	now := time.Now()
	updates := map[string]any{
		"processed":    true,
		"processed_at": &now,
	}
	if handleErr != nil {
		msg := handleErr.Error()
		updates["error"] = &msg
	}
	return r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

func (r *repository) AbandonExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("status = ? AND expires_at <= ?", StatusPending, now).
		Updates(map[string]any{
			"status":     StatusAbandoned,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
