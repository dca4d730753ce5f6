package payment

import "errors"

var (
	// ErrPaymentNotFound is returned when a payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateEvent is returned when a webhook event was already stored.
	ErrDuplicateEvent = errors.New("webhook event already processed")
	// ErrAmountMismatch is returned when a webhook declares a different
	// amount than the payment it settles.
	ErrAmountMismatch = errors.New("webhook amount does not match payment")
)
