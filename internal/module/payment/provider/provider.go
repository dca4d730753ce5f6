package provider

import (
	"context"
	"encoding/json"
	"time"
)

// InitResult is the processor's answer to a transaction initialization.
type InitResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	RawPayload       json.RawMessage
}

// VerifyResult is the processor's view of one transaction.
type VerifyResult struct {
	Reference  string
	Status     string // success, failed, abandoned, pending
	Amount     int64
	Currency   string
	PaidAt     *time.Time
	RawPayload json.RawMessage
}

// Gateway mediates between the application and the payment processor.
type Gateway interface {
	// Name returns the provider name.
	Name() string
	// InitializeTransaction asks the processor to open a transaction and
	// returns the redirect target for the payer.
	InitializeTransaction(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, metadata map[string]string) (*InitResult, error)
	// VerifyTransaction queries the processor for the current status of
	// a reference.
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error)
	// VerifyWebhookSignature reports whether signature matches the HMAC
	// of the raw body bytes under the shared secret. It never errors.
	VerifyWebhookSignature(signature string, body []byte) bool
}
