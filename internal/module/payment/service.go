package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/module/billing"
	"github.com/aditus/server/internal/module/payment/provider"
	"github.com/aditus/server/internal/shared/config"
	apperrors "github.com/aditus/server/internal/shared/errors"
	"github.com/aditus/server/internal/shared/metrics"
)

// EmailDirectory resolves the email address the processor needs to open
// a checkout session.
type EmailDirectory interface {
	GetUserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// ServiceInterface defines the payment service interface.
type ServiceInterface interface {
	InitiatePayment(ctx context.Context, userID uuid.UUID, planID string, method Method) (*Payment, *provider.InitResult, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, reference string) (*Payment, error)
	GetPayment(ctx context.Context, userID uuid.UUID, reference string) (*Payment, error)
	ListPayments(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, error)
	PaymentStatus(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, *billing.Subscription, error)
	HandleWebhookEvent(ctx context.Context, eventType string, payload []byte) error
	AbandonExpired(ctx context.Context) (int64, error)
}

// ErrNotOwner is returned when a payment belongs to a different user.
var ErrNotOwner = errors.New("payment belongs to another user")

// Service implements payment operations.
type Service struct {
	repo    Repository
	gateway provider.Gateway
	billing billing.ServiceInterface
	users   EmailDirectory
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     *config.PaystackConfig
	now     func() time.Time
}

// NewService creates a new payment service.
func NewService(repo Repository, gateway provider.Gateway, billingSvc billing.ServiceInterface, users EmailDirectory, m *metrics.Metrics, cfg *config.PaystackConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		billing: billingSvc,
		users:   users,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// InitiatePayment creates a pending payment for a plan and opens a
// checkout session with the processor. The amount is taken from the
// plan, never from the client.
func (s *Service) InitiatePayment(ctx context.Context, userID uuid.UUID, planID string, method Method) (*Payment, *provider.InitResult, error) {
	plan, err := s.billing.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve plan: %w", err)
	}
	if plan.PriceMinor <= 0 {
		return nil, nil, billing.ErrPlanNotActive
	}

	email, err := s.users.GetUserEmail(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve user: %w", err)
	}

	now := s.now()
	payment := &Payment{
		ID:        uuid.New(),
		UserID:    userID,
		Reference: newReference(),
		Status:    StatusPending,
		Amount:    plan.PriceMinor,
		Currency:  plan.Currency,
		Method:    method,
		PlanID:    plan.ID,
		ExpiresAt: now.Add(s.cfg.PaymentExpiry),
	}
	// The processor is asked first; a failed handoff leaves no record
	// behind, so an aborted initiation never shows up in the user's
	// payment history.
	init, err := s.gateway.InitializeTransaction(ctx, email, payment.Amount, payment.Currency, payment.Reference, s.cfg.CallbackURL, map[string]string{
		"user_id": userID.String(),
		"plan_id": plan.ID,
	})
	if err != nil {
		s.countPayment(StatusFailed, method)
		s.logger.Warn("payment initialization failed",
			zap.String("reference", payment.Reference),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, nil, apperrors.PaymentInit("could not start payment", err)
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}

	s.appendLog(ctx, payment, StatusPending, init.RawPayload)
	s.logger.Info("payment initiated",
		zap.String("reference", payment.Reference),
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID),
		zap.Int64("amount", payment.Amount),
	)
	return payment, init, nil
}

// GetPayment returns a payment by reference if it belongs to the user.
func (s *Service) GetPayment(ctx context.Context, userID uuid.UUID, reference string) (*Payment, error) {
	payment, err := s.repo.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotOwner
	}
	return payment, nil
}

// ListPayments returns the user's payment history, newest first.
func (s *Service) ListPayments(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, error) {
	return s.repo.ListPaymentsByUser(ctx, userID, limit)
}

// PaymentStatus returns the user's recent payments together with their
// current subscription. A user without a subscription gets a nil one.
func (s *Service) PaymentStatus(ctx context.Context, userID uuid.UUID, limit int) ([]*Payment, *billing.Subscription, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID, limit)
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.billing.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return payments, nil, nil
		}
		return nil, nil, err
	}
	return payments, sub, nil
}

// VerifyPayment reconciles a payment with the processor. A still-pending
// payment is settled from the processor's answer using the same
// conditional transition the webhook path uses, so verify and webhook
// can race without double-applying effects.
func (s *Service) VerifyPayment(ctx context.Context, userID uuid.UUID, reference string) (*Payment, error) {
	payment, err := s.GetPayment(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	result, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, apperrors.Gateway("could not verify payment", err)
	}
	s.appendLog(ctx, payment, mapProcessorStatus(result.Status), result.RawPayload)

	switch mapProcessorStatus(result.Status) {
	case StatusSuccess:
		if err := s.settleSuccess(ctx, payment, result.Amount, result.Currency, result.PaidAt); err != nil {
			return nil, err
		}
	case StatusFailed:
		if err := s.settleFailure(ctx, payment, "declined by processor"); err != nil {
			return nil, err
		}
	case StatusAbandoned:
		if _, err := s.repo.TransitionStatus(ctx, reference, StatusAbandoned, nil, ""); err != nil {
			return nil, err
		}
	default:
		// Still pending at the processor; nothing to settle.
		return payment, nil
	}

	return s.repo.GetPaymentByReference(ctx, reference)
}

// webhookPayload is the data block of a Paystack charge event.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		Status          string `json:"status"`
		PaidAt          string `json:"paid_at"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// HandleWebhookEvent applies one delivered webhook. Processing is
// exactly-once per (event type, reference): the unique event row absorbs
// redeliveries, and the conditional status transition absorbs races with
// the verify path.
func (s *Service) HandleWebhookEvent(ctx context.Context, eventType string, payload []byte) error {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	if body.Data.Reference == "" {
		return fmt.Errorf("webhook payload has no reference")
	}

	eventID := eventType + ":" + body.Data.Reference
	event := &WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Reference: body.Data.Reference,
		Payload:   string(payload),
	}
	if err := s.repo.CreateWebhookEvent(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			s.countWebhook(eventType, "duplicate")
			return ErrDuplicateEvent
		}
		return fmt.Errorf("store webhook event: %w", err)
	}

	handleErr := s.applyWebhook(ctx, eventType, &body, payload)
	if err := s.repo.MarkWebhookEventProcessed(ctx, eventID, handleErr); err != nil {
		s.logger.Error("mark webhook processed", zap.String("event_id", eventID), zap.Error(err))
	}
	if handleErr != nil {
		s.countWebhook(eventType, "error")
		return handleErr
	}
	s.countWebhook(eventType, "processed")
	return nil
}

func (s *Service) applyWebhook(ctx context.Context, eventType string, body *webhookPayload, payload []byte) error {
	payment, err := s.repo.GetPaymentByReference(ctx, body.Data.Reference)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", body.Data.Reference, err)
	}
	s.appendLog(ctx, payment, mapProcessorStatus(body.Data.Status), json.RawMessage(payload))

	switch eventType {
	case "charge.success":
		return s.settleSuccess(ctx, payment, body.Data.Amount, body.Data.Currency, parsePaidAt(body.Data.PaidAt))
	case "charge.failed":
		reason := body.Data.GatewayResponse
		if reason == "" {
			reason = "declined by processor"
		}
		return s.settleFailure(ctx, payment, reason)
	default:
		// Unrecognized events are stored and acknowledged.
		s.logger.Info("ignoring webhook event", zap.String("event", eventType))
		return nil
	}
}

// settleSuccess moves a payment to success and grants the purchased
// plan. The grant only runs when this caller wins the transition.
func (s *Service) settleSuccess(ctx context.Context, payment *Payment, amount int64, currency string, paidAt *time.Time) error {
	if amount != payment.Amount || !strings.EqualFold(currency, payment.Currency) {
		if _, err := s.repo.TransitionStatus(ctx, payment.Reference, StatusFailed, nil, "amount mismatch"); err != nil {
			return err
		}
		s.countPayment(StatusFailed, payment.Method)
		s.logger.Warn("webhook amount mismatch",
			zap.String("reference", payment.Reference),
			zap.Int64("expected", payment.Amount),
			zap.Int64("got", amount),
		)
		return ErrAmountMismatch
	}

	completedAt := paidAt
	if completedAt == nil {
		now := s.now()
		completedAt = &now
	}
	won, err := s.repo.TransitionStatus(ctx, payment.Reference, StatusSuccess, completedAt, "")
	if err != nil {
		return fmt.Errorf("transition payment: %w", err)
	}
	if !won {
		return nil
	}

	if _, err := s.billing.ActivateFromPayment(ctx, payment.UserID, payment.PlanID); err != nil {
		s.logger.Error("activate subscription",
			zap.String("reference", payment.Reference),
			zap.String("plan_id", payment.PlanID),
			zap.Error(err),
		)
		return fmt.Errorf("activate subscription: %w", err)
	}

	s.countPayment(StatusSuccess, payment.Method)
	s.logger.Info("payment settled",
		zap.String("reference", payment.Reference),
		zap.String("user_id", payment.UserID.String()),
		zap.String("plan_id", payment.PlanID),
	)
	return nil
}

func (s *Service) settleFailure(ctx context.Context, payment *Payment, reason string) error {
	won, err := s.repo.TransitionStatus(ctx, payment.Reference, StatusFailed, nil, reason)
	if err != nil {
		return fmt.Errorf("transition payment: %w", err)
	}
	if won {
		s.countPayment(StatusFailed, payment.Method)
		s.logger.Info("payment failed",
			zap.String("reference", payment.Reference),
			zap.String("reason", reason),
		)
	}
	return nil
}

// AbandonExpired marks pending payments past their expiry abandoned.
func (s *Service) AbandonExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.AbandonExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("abandon expired: %w", err)
	}
	if n > 0 {
		s.logger.Info("abandoned expired payments", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) appendLog(ctx context.Context, payment *Payment, status Status, payload json.RawMessage) {
	entry := &TransactionLog{
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Status:    status,
		Payload:   string(payload),
	}
	if err := s.repo.AppendTransactionLog(ctx, entry); err != nil {
		s.logger.Error("append transaction log", zap.String("reference", payment.Reference), zap.Error(err))
	}
}

func (s *Service) countPayment(status Status, method Method) {
	if s.metrics != nil {
		s.metrics.PaymentsTotal.WithLabelValues(string(status), string(method)).Inc()
	}
}

func (s *Service) countWebhook(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

func mapProcessorStatus(status string) Status {
	switch status {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "abandoned":
		return StatusAbandoned
	default:
		return StatusPending
	}
}

func parsePaidAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func newReference() string {
	return "adt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
