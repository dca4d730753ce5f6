package payment

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the status of a payment.
// A payment starts pending and moves to exactly one terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// IsTerminal returns true for states a payment never leaves.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusAbandoned
}

// Method represents a payment method type.
type Method string

const (
	MethodMpesa Method = "mpesa"
	MethodCard  Method = "card"
)

// Payment represents a payment record. Rows are never deleted; they are
// retained for audit.
type Payment struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Reference     string     `json:"reference" gorm:"uniqueIndex;not null"`
	Status        Status     `json:"status" gorm:"not null;default:pending"`
	Amount        int64      `json:"amount"` // minor currency units
	Currency      string     `json:"currency" gorm:"default:KES"`
	Method        Method     `json:"method"`
	PlanID        string     `json:"plan_id"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// IsSucceeded returns true if the payment succeeded.
func (p *Payment) IsSucceeded() bool {
	return p.Status == StatusSuccess
}

// TransactionLog records every interaction with the processor for a
// payment. Rows are append-only.
type TransactionLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentID uuid.UUID `gorm:"type:uuid;not null;index"`
	Reference string    `gorm:"not null;index"`
	Status    Status    `gorm:"not null"`
	Payload   string    `gorm:"type:jsonb"` // raw processor response
	CreatedAt time.Time
}

// TableName returns the database table name.
func (TransactionLog) TableName() string {
	return "transaction_logs"
}

// WebhookEvent stores each delivered webhook. The unique EventID turns
// duplicate deliveries into insert conflicts instead of racing reads.
type WebhookEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID     string    `gorm:"uniqueIndex;not null"` // eventType:reference
	EventType   string    `gorm:"not null"`
	Reference   string    `gorm:"index"`
	Payload     string    `gorm:"type:jsonb"`
	Processed   bool      `gorm:"default:false"`
	ProcessedAt *time.Time
	Error       *string
	CreatedAt   time.Time
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
