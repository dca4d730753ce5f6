package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/aditus/server/internal/module/billing"
)

// InitiateRequest is the body for starting a payment.
type InitiateRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Method Method `json:"method" binding:"required,oneof=mpesa card"`
}

// InitiateResponse returns the checkout redirect for a new payment.
type InitiateResponse struct {
	ID               uuid.UUID `json:"id"`
	Reference        string    `json:"reference"`
	AuthorizationURL string    `json:"authorization_url"`
	AccessCode       string    `json:"access_code"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// StatusResponse combines recent payments with the current subscription.
type StatusResponse struct {
	Payments     []*PaymentResponse            `json:"payments"`
	Subscription *billing.SubscriptionResponse `json:"subscription,omitempty"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	Reference     string     `json:"reference"`
	Status        Status     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Method        Method     `json:"method"`
	PlanID        string     `json:"plan_id"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToResponse converts a Payment to PaymentResponse.
func (p *Payment) ToResponse() *PaymentResponse {
	return &PaymentResponse{
		ID:            p.ID,
		Reference:     p.Reference,
		Status:        p.Status,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		PlanID:        p.PlanID,
		FailureReason: p.FailureReason,
		CompletedAt:   p.CompletedAt,
		CreatedAt:     p.CreatedAt,
	}
}
