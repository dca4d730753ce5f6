package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aditus/server/internal/shared/config"
)

func newTestProvider(baseURL string) *PaystackProvider {
	return NewPaystackProvider(&config.PaystackConfig{
		BaseURL:        baseURL,
		SecretKey:      "sk_test_abc123",
		RequestTimeout: 5 * time.Second,
	})
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	p := newTestProvider("")
	body := []byte(`{"event":"charge.success","data":{"reference":"adt_1"}}`)

	tests := []struct {
		name      string
		signature string
		body      []byte
		want      bool
	}{
		{
			name:      "valid signature",
			signature: sign("sk_test_abc123", body),
			body:      body,
			want:      true,
		},
		{
			name:      "wrong secret",
			signature: sign("sk_other_secret", body),
			body:      body,
			want:      false,
		},
		{
			name:      "tampered body",
			signature: sign("sk_test_abc123", body),
			body:      []byte(`{"event":"charge.success","data":{"reference":"adt_2"}}`),
			want:      false,
		},
		{
			name:      "empty signature",
			signature: "",
			body:      body,
			want:      false,
		},
		{
			name:      "not hex",
			signature: "zz-not-hex",
			body:      body,
			want:      false,
		},
		{
			name:      "truncated signature",
			signature: sign("sk_test_abc123", body)[:64],
			body:      body,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.VerifyWebhookSignature(tt.signature, tt.body))
		})
	}
}

func TestInitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code": "abc",
				"reference": "adt_1"
			}
		}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	result, err := p.InitializeTransaction(context.Background(), "payer@example.com", 99900, "KES", "adt_1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", result.AuthorizationURL)
	assert.Equal(t, "adt_1", result.Reference)
}

func TestInitializeTransactionDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status": false, "message": "Invalid amount"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.InitializeTransaction(context.Background(), "payer@example.com", -1, "KES", "adt_1", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid amount")
}

func TestVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/adt_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"reference": "adt_1",
				"status": "success",
				"amount": 99900,
				"currency": "KES",
				"paid_at": "2026-08-30T12:00:00Z"
			}
		}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	result, err := p.VerifyTransaction(context.Background(), "adt_1")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, int64(99900), result.Amount)
	require.NotNil(t, result.PaidAt)
	assert.Equal(t, 2026, result.PaidAt.Year())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status": false, "message": "boom"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := p.VerifyTransaction(context.Background(), "adt_1")
		require.Error(t, err)
	}

	// Breaker is open now; the request fails without reaching the server.
	_, err := p.VerifyTransaction(context.Background(), "adt_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
