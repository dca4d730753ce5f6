package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aditus/server/internal/shared/config"
)

// PaystackProvider implements the Gateway interface for Paystack.
type PaystackProvider struct {
	baseURL   string
	secretKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*paystackEnvelope]
}

// NewPaystackProvider creates a new Paystack gateway.
func NewPaystackProvider(cfg *config.PaystackConfig) *PaystackProvider {
	settings := gobreaker.Settings{
		Name:        "paystack",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &PaystackProvider{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker[*paystackEnvelope](settings),
	}
}

// Name returns the provider name.
func (p *PaystackProvider) Name() string {
	return "paystack"
}

// paystackEnvelope is the wire format of every Paystack response.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
}

// InitializeTransaction opens a transaction with Paystack.
func (p *PaystackProvider) InitializeTransaction(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, metadata map[string]string) (*InitResult, error) {
	body := map[string]any{
		"email":     email,
		"amount":    amount,
		"currency":  currency,
		"reference": reference,
	}
	if callbackURL != "" {
		body["callback_url"] = callbackURL
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	env, err := p.post(ctx, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode initialize data: %w", err)
	}

	return &InitResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
		RawPayload:       env.Data,
	}, nil
}

// VerifyTransaction queries Paystack for the status of a reference.
func (p *PaystackProvider) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	env, err := p.get(ctx, "/transaction/verify/"+reference)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode verify data: %w", err)
	}

	result := &VerifyResult{
		Reference:  data.Reference,
		Status:     data.Status,
		Amount:     data.Amount,
		Currency:   data.Currency,
		RawPayload: env.Data,
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			result.PaidAt = &t
		}
	}
	return result, nil
}

// VerifyWebhookSignature recomputes the HMAC-SHA512 of the raw body
// bytes under the secret key and compares it constant-time against the
// hex signature Paystack sends in x-paystack-signature. The body must be
// hashed exactly as delivered; reserializing it changes the digest.
func (p *PaystackProvider) VerifyWebhookSignature(signature string, body []byte) bool {
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// --- HTTP plumbing ---

func (p *PaystackProvider) post(ctx context.Context, path string, body any) (*paystackEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return p.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
}

func (p *PaystackProvider) get(ctx context.Context, path string) (*paystackEnvelope, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

func (p *PaystackProvider) do(ctx context.Context, method, path string, body io.Reader) (*paystackEnvelope, error) {
	return p.breaker.Execute(func() (*paystackEnvelope, error) {
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.secretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("paystack request: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var env paystackEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if resp.StatusCode >= 400 || !env.Status {
			return nil, fmt.Errorf("paystack %s %s: %s (http %d)", method, path, env.Message, resp.StatusCode)
		}
		return &env, nil
	})
}
