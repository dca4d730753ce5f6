package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aditus/server/internal/shared/middleware"
	"github.com/aditus/server/internal/shared/response"
)

// Handler handles HTTP requests for plans, subscriptions and quota.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new billing handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers billing routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
	r.GET("/subscription", h.GetSubscription)
	r.DELETE("/subscription", h.CancelSubscription)
	quota := r.Group("/quota")
	{
		quota.GET("/status", h.GetQuotaStatus)
	}
}

// ListPlans returns all active plans.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}

	resp := make([]*PlanResponse, len(plans))
	for i, plan := range plans {
		resp[i] = plan.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{"plans": resp})
}

// GetSubscription returns the caller's subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	sub, err := h.service.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			response.NotFound(c, "no subscription")
			return
		}
		response.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub.ToResponse())
}

// CancelSubscription cancels the caller's subscription.
func (h *Handler) CancelSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	sub, err := h.service.CancelSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			response.NotFound(c, "no subscription")
			return
		}
		response.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub.ToResponse())
}

// GetQuotaStatus returns per-window usage against the caller's plan.
func (h *Handler) GetQuotaStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	status, err := h.service.GetQuotaStatus(c.Request.Context(), userID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
