package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := NotFound("payment")
	assert.Equal(t, "payment not found", e.Error())

	// Bare classification sentinels are not rendered.
	assert.Equal(t, "access denied", Forbidden("").Error())
	assert.Equal(t, "could not start payment", PaymentInit("could not start payment", nil).Error())

	wrapped := Internal("something broke", errors.New("db down"))
	assert.Contains(t, wrapped.Error(), "db down")

	cause := Gateway("could not verify payment", errors.New("timeout"))
	assert.Contains(t, cause.Error(), "timeout")
}

func TestAppError_Unwrap(t *testing.T) {
	e := QuotaExceeded("daily quota exceeded", nil)
	assert.True(t, errors.Is(e, ErrQuotaExceeded))

	g := Gateway("verify failed", errors.New("timeout"))
	assert.True(t, errors.Is(g, ErrGateway))

	p := PaymentInit("bad plan", nil)
	assert.True(t, errors.Is(p, ErrPaymentInit))
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{NotFound("payment"), http.StatusNotFound},
		{Unauthorized(""), http.StatusUnauthorized},
		{Forbidden(""), http.StatusForbidden},
		{BadRequest("bad amount"), http.StatusBadRequest},
		{Conflict("duplicate"), http.StatusConflict},
		{QuotaExceeded("over", nil), http.StatusTooManyRequests},
		{PaymentInit("init", nil), http.StatusBadGateway},
		{Gateway("verify", nil), http.StatusBadGateway},
		{ErrQuotaExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", ErrNotFound), http.StatusNotFound},
		{errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetStatusCode(tt.err))
		})
	}
}

func TestQuotaExceeded_Details(t *testing.T) {
	details := map[string]any{"window": "daily", "used": 9500, "limit": 10000}
	e := QuotaExceeded("daily quota exceeded", details)
	resp := e.ToResponse()
	assert.Equal(t, "QUOTA_EXCEEDED", resp.Error.Code)
	assert.Equal(t, details, resp.Error.Details)
}
