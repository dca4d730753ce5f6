package billing

import (
	"time"

	"github.com/google/uuid"
)

// PlanResponse represents a plan in API responses.
type PlanResponse struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PriceMinor     int64    `json:"price_minor"`
	Currency       string   `json:"currency"`
	DurationDays   int      `json:"duration_days"`
	DailyTokens    int64    `json:"daily_tokens"`
	MonthlyTokens  int64    `json:"monthly_tokens"`
	HourlyRequests int64    `json:"hourly_requests"`
	Features       []string `json:"features"`
}

// ToResponse converts a Plan to PlanResponse.
func (p *Plan) ToResponse() *PlanResponse {
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	return &PlanResponse{
		ID:             p.ID,
		Type:           string(p.Type),
		Name:           p.Name,
		Description:    p.Description,
		PriceMinor:     p.PriceMinor,
		Currency:       p.Currency,
		DurationDays:   p.DurationDays,
		DailyTokens:    p.DailyTokens,
		MonthlyTokens:  p.MonthlyTokens,
		HourlyRequests: p.HourlyRequests,
		Features:       features,
	}
}

// SubscriptionResponse represents a subscription in API responses.
type SubscriptionResponse struct {
	ID          uuid.UUID     `json:"id"`
	PlanID      string        `json:"plan_id"`
	Status      string        `json:"status"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	Plan        *PlanResponse `json:"plan,omitempty"`
}

// ToResponse converts a Subscription to SubscriptionResponse.
func (s *Subscription) ToResponse() *SubscriptionResponse {
	resp := &SubscriptionResponse{
		ID:          s.ID,
		PlanID:      s.PlanID,
		Status:      string(s.Status),
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		CancelledAt: s.CancelledAt,
	}
	if s.Plan != nil {
		resp.Plan = s.Plan.ToResponse()
	}
	return resp
}

// QuotaStatusResponse reports per-window usage against plan limits.
type QuotaStatusResponse struct {
	PlanID  string        `json:"plan_id"`
	Windows []WindowUsage `json:"windows"`
}
