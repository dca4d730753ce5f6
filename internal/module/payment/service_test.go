package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/module/billing"
	"github.com/aditus/server/internal/module/payment/provider"
	"github.com/aditus/server/internal/shared/config"
	apperrors "github.com/aditus/server/internal/shared/errors"
)

// MockRepository implements Repository for testing.
type MockRepository struct {
	payments map[string]*Payment
	events   map[string]*WebhookEvent
	logs     []*TransactionLog
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		payments: make(map[string]*Payment),
		events:   make(map[string]*WebhookEvent),
	}
}

func (m *MockRepository) CreatePayment(_ context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.payments[p.Reference] = p
	return nil
}

func (m *MockRepository) GetPayment(_ context.Context, id uuid.UUID) (*Payment, error) {
	for _, p := range m.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *MockRepository) GetPaymentByReference(_ context.Context, reference string) (*Payment, error) {
	p, ok := m.payments[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MockRepository) ListPaymentsByUser(_ context.Context, userID uuid.UUID, _ int) ([]*Payment, error) {
	var out []*Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockRepository) TransitionStatus(_ context.Context, reference string, to Status, completedAt *time.Time, failureReason string) (bool, error) {
	p, ok := m.payments[reference]
	if !ok || p.Status != StatusPending {
		return false, nil
	}
	p.Status = to
	p.CompletedAt = completedAt
	if failureReason != "" {
		p.FailureReason = failureReason
	}
	return true, nil
}

func (m *MockRepository) AppendTransactionLog(_ context.Context, log *TransactionLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockRepository) CreateWebhookEvent(_ context.Context, event *WebhookEvent) error {
	if _, ok := m.events[event.EventID]; ok {
		return ErrDuplicateEvent
	}
	m.events[event.EventID] = event
	return nil
}

func (m *MockRepository) MarkWebhookEventProcessed(_ context.Context, eventID string, handleErr error) error {
	if e, ok := m.events[eventID]; ok {
		e.Processed = true
		if handleErr != nil {
			msg := handleErr.Error()
			e.Error = &msg
		}
	}
	return nil
}

func (m *MockRepository) AbandonExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, p := range m.payments {
		if p.Status == StatusPending && !p.ExpiresAt.After(now) {
			p.Status = StatusAbandoned
			n++
		}
	}
	return n, nil
}

// MockGateway implements provider.Gateway for testing.
type MockGateway struct {
	initErr      error
	verifyResult *provider.VerifyResult
	verifyErr    error
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) InitializeTransaction(_ context.Context, _ string, _ int64, _, reference, _ string, _ map[string]string) (*provider.InitResult, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	return &provider.InitResult{
		AuthorizationURL: "https://checkout.example/" + reference,
		AccessCode:       "code_" + reference,
		Reference:        reference,
		RawPayload:       json.RawMessage(`{}`),
	}, nil
}

func (m *MockGateway) VerifyTransaction(_ context.Context, _ string) (*provider.VerifyResult, error) {
	return m.verifyResult, m.verifyErr
}

func (m *MockGateway) VerifyWebhookSignature(_ string, _ []byte) bool { return true }

// MockBilling implements billing.ServiceInterface for testing.
type MockBilling struct {
	plans       map[string]*billing.Plan
	activations []string // "userID:planID"
}

func NewMockBilling(plans ...*billing.Plan) *MockBilling {
	m := &MockBilling{plans: make(map[string]*billing.Plan)}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *MockBilling) ListPlans(_ context.Context) ([]*billing.Plan, error) { return nil, nil }

func (m *MockBilling) GetPlan(_ context.Context, planID string) (*billing.Plan, error) {
	p, ok := m.plans[planID]
	if !ok {
		return nil, billing.ErrPlanNotFound
	}
	return p, nil
}

func (m *MockBilling) GetSubscription(_ context.Context, _ uuid.UUID) (*billing.Subscription, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func (m *MockBilling) ActivateFromPayment(_ context.Context, userID uuid.UUID, planID string) (*billing.Subscription, error) {
	m.activations = append(m.activations, userID.String()+":"+planID)
	return &billing.Subscription{UserID: userID, PlanID: planID}, nil
}

func (m *MockBilling) CancelSubscription(_ context.Context, _ uuid.UUID) (*billing.Subscription, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func (m *MockBilling) EffectivePlan(_ context.Context, _ uuid.UUID) (*billing.Plan, error) {
	return nil, billing.ErrPlanNotFound
}

func (m *MockBilling) CheckQuota(_ context.Context, _ uuid.UUID, _ string, _ int64) error {
	return nil
}

func (m *MockBilling) GetQuotaStatus(_ context.Context, _ uuid.UUID) (*billing.QuotaStatusResponse, error) {
	return nil, nil
}

func (m *MockBilling) RecordUsage(_ context.Context, _ *billing.UsageRecord) error { return nil }

// MockDirectory implements EmailDirectory for testing.
type MockDirectory struct{}

func (MockDirectory) GetUserEmail(_ context.Context, _ uuid.UUID) (string, error) {
	return "payer@example.com", nil
}

func proPlan() *billing.Plan {
	return &billing.Plan{
		ID:           "pro",
		Name:         "Pro",
		PriceMinor:   99900,
		Currency:     "KES",
		DurationDays: 30,
		Active:       true,
	}
}

func newTestService(t *testing.T) (*Service, *MockRepository, *MockGateway, *MockBilling) {
	t.Helper()
	repo := NewMockRepository()
	gateway := &MockGateway{}
	billingSvc := NewMockBilling(proPlan())
	cfg := &config.PaystackConfig{
		SecretKey:       "sk_test_secret",
		CallbackURL:     "https://aditus.example/callback",
		DefaultCurrency: "KES",
		PaymentExpiry:   24 * time.Hour,
	}
	svc := NewService(repo, gateway, billingSvc, MockDirectory{}, nil, cfg, zap.NewNop())
	return svc, repo, gateway, billingSvc
}

func successWebhook(reference string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"reference":%q,"amount":%d,"currency":"KES","status":"success","paid_at":"2026-08-30T12:00:00Z"}}`,
		reference, amount,
	))
}

func TestInitiatePayment(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	userID := uuid.New()

	payment, init, err := svc.InitiatePayment(context.Background(), userID, "pro", MethodMpesa)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, payment.Status)
	assert.Equal(t, int64(99900), payment.Amount, "amount must come from the plan")
	assert.Equal(t, "KES", payment.Currency)
	assert.NotEmpty(t, init.AuthorizationURL)
	assert.True(t, payment.ExpiresAt.After(time.Now().Add(23*time.Hour)))

	stored, err := repo.GetPaymentByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, userID, stored.UserID)
	assert.Len(t, repo.logs, 1)
}

func TestInitiatePaymentUnknownPlan(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "no-such-plan", MethodCard)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrPlanNotFound)
}

func TestInitiatePaymentGatewayDown(t *testing.T) {
	svc, repo, gateway, _ := newTestService(t)
	gateway.initErr = fmt.Errorf("paystack unreachable")

	_, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "pro", MethodCard)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPaymentInit)

	// A failed handoff leaves no record behind.
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.logs)
}

func TestVerifyPaymentGatewayDown(t *testing.T) {
	svc, _, gateway, _ := newTestService(t)
	userID := uuid.New()

	payment, _, err := svc.InitiatePayment(context.Background(), userID, "pro", MethodCard)
	require.NoError(t, err)

	gateway.verifyErr = fmt.Errorf("paystack unreachable")
	_, err = svc.VerifyPayment(context.Background(), userID, payment.Reference)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGateway)
	assert.Equal(t, 502, apperrors.GetStatusCode(err))
}

func TestWebhookSuccessGrantsPlanOnce(t *testing.T) {
	svc, repo, _, billingSvc := newTestService(t)
	userID := uuid.New()

	payment, _, err := svc.InitiatePayment(context.Background(), userID, "pro", MethodMpesa)
	require.NoError(t, err)

	body := successWebhook(payment.Reference, payment.Amount)
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), "charge.success", body))

	stored, err := repo.GetPaymentByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Len(t, billingSvc.activations, 1)

	// Redelivery of the same event must be a no-op.
	err = svc.HandleWebhookEvent(context.Background(), "charge.success", body)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Len(t, billingSvc.activations, 1)
}

func TestWebhookAmountMismatchFailsPayment(t *testing.T) {
	svc, repo, _, billingSvc := newTestService(t)

	payment, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "pro", MethodCard)
	require.NoError(t, err)

	body := successWebhook(payment.Reference, payment.Amount-100)
	err = svc.HandleWebhookEvent(context.Background(), "charge.success", body)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	stored, err := repo.GetPaymentByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "amount mismatch", stored.FailureReason)
	assert.Empty(t, billingSvc.activations, "no plan granted on mismatch")
}

func TestWebhookFailureRecordsReason(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	payment, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "pro", MethodMpesa)
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(
		`{"event":"charge.failed","data":{"reference":%q,"amount":99900,"currency":"KES","status":"failed","gateway_response":"Insufficient funds"}}`,
		payment.Reference,
	))
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), "charge.failed", body))

	stored, err := repo.GetPaymentByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "Insufficient funds", stored.FailureReason)
}

func TestWebhookAfterVerifyDoesNotReactivate(t *testing.T) {
	svc, _, gateway, billingSvc := newTestService(t)
	userID := uuid.New()

	payment, _, err := svc.InitiatePayment(context.Background(), userID, "pro", MethodCard)
	require.NoError(t, err)

	// Verify settles the payment first.
	paidAt := time.Now()
	gateway.verifyResult = &provider.VerifyResult{
		Reference:  payment.Reference,
		Status:     "success",
		Amount:     payment.Amount,
		Currency:   "KES",
		PaidAt:     &paidAt,
		RawPayload: json.RawMessage(`{}`),
	}
	settled, err := svc.VerifyPayment(context.Background(), userID, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, settled.Status)
	assert.Len(t, billingSvc.activations, 1)

	// The webhook for the same charge arrives late; it must not grant
	// the plan a second time.
	body := successWebhook(payment.Reference, payment.Amount)
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), "charge.success", body))
	assert.Len(t, billingSvc.activations, 1)
}

func TestVerifyPaymentTerminalSkipsProcessor(t *testing.T) {
	svc, repo, gateway, _ := newTestService(t)
	userID := uuid.New()

	payment, _, err := svc.InitiatePayment(context.Background(), userID, "pro", MethodMpesa)
	require.NoError(t, err)
	_, err = repo.TransitionStatus(context.Background(), payment.Reference, StatusSuccess, nil, "")
	require.NoError(t, err)

	gateway.verifyErr = fmt.Errorf("must not be called")
	got, err := svc.VerifyPayment(context.Background(), userID, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestVerifyPaymentWrongOwner(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	payment, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "pro", MethodCard)
	require.NoError(t, err)

	_, err = svc.VerifyPayment(context.Background(), uuid.New(), payment.Reference)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	svc, _, _, billingSvc := newTestService(t)

	payment, _, err := svc.InitiatePayment(context.Background(), uuid.New(), "pro", MethodMpesa)
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(
		`{"event":"transfer.success","data":{"reference":%q,"amount":99900,"currency":"KES","status":"success"}}`,
		payment.Reference,
	))
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), "transfer.success", body))
	assert.Empty(t, billingSvc.activations)
}

func TestAbandonExpired(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	now := time.Now()
	svc.now = func() time.Time { return now }

	fresh := &Payment{UserID: uuid.New(), Reference: "ref_fresh", Status: StatusPending, ExpiresAt: now.Add(time.Hour)}
	stale := &Payment{UserID: uuid.New(), Reference: "ref_stale", Status: StatusPending, ExpiresAt: now.Add(-time.Hour)}
	settled := &Payment{UserID: uuid.New(), Reference: "ref_done", Status: StatusSuccess, ExpiresAt: now.Add(-time.Hour)}
	for _, p := range []*Payment{fresh, stale, settled} {
		require.NoError(t, repo.CreatePayment(context.Background(), p))
	}

	n, err := svc.AbandonExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := repo.GetPaymentByReference(context.Background(), "ref_stale")
	assert.Equal(t, StatusAbandoned, got.Status)
	got, _ = repo.GetPaymentByReference(context.Background(), "ref_fresh")
	assert.Equal(t, StatusPending, got.Status)
	got, _ = repo.GetPaymentByReference(context.Background(), "ref_done")
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestPaymentStatusWithoutSubscription(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	userID := uuid.New()

	p := &Payment{UserID: userID, Reference: "ref_one", Status: StatusSuccess, PlanID: "pro"}
	require.NoError(t, repo.CreatePayment(context.Background(), p))

	payments, sub, err := svc.PaymentStatus(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "ref_one", payments[0].Reference)
	assert.Nil(t, sub)
}
