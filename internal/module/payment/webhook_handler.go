package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/module/payment/provider"
	"github.com/aditus/server/internal/shared/response"
)

// maxWebhookBody bounds webhook payloads to keep hostile senders from
// streaming arbitrary data into memory.
const maxWebhookBody = 1 << 20

// WebhookHandler receives processor callbacks. It is mounted outside
// the authenticated group; the HMAC signature is its only auth.
type WebhookHandler struct {
	service ServiceInterface
	gateway provider.Gateway
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service ServiceInterface, gateway provider.Gateway, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		gateway: gateway,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/webhook", h.HandlePaystack)
}

// HandlePaystack processes one Paystack webhook delivery. Paystack
// retries anything that is not a 2xx, so duplicates, unknown events and
// unknown references are acknowledged rather than erred.
func (h *WebhookHandler) HandlePaystack(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "cannot read body")
		return
	}

	signature := c.GetHeader("x-paystack-signature")
	if !h.gateway.VerifyWebhookSignature(signature, body) {
		h.logger.Warn("webhook signature rejected", zap.String("remote", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Event == "" {
		response.BadRequest(c, "malformed event")
		return
	}

	err = h.service.HandleWebhookEvent(c.Request.Context(), probe.Event, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	case errors.Is(err, ErrAmountMismatch):
		// Acknowledged so the processor stops retrying; the payment is
		// already marked failed and the event row carries the error.
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	case errors.Is(err, ErrPaymentNotFound):
		h.logger.Warn("webhook for unknown reference", zap.String("event", probe.Event))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		h.logger.Error("webhook processing failed", zap.String("event", probe.Event), zap.Error(err))
		response.InternalError(c, "")
	}
}
