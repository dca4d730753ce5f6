package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aditus/server/internal/shared/middleware"
	"github.com/aditus/server/internal/shared/response"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new payment handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers payment routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/initiate", h.Initiate)
		payments.GET("", h.List)
		payments.GET("/status", h.Status)
		payments.GET("/verify/:reference", h.Verify)
		payments.GET("/:reference", h.Get)
	}
}

// Initiate starts a payment for a plan and returns the checkout URL.
func (h *Handler) Initiate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	payment, init, err := h.service.InitiatePayment(c.Request.Context(), userID, req.PlanID, req.Method)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, &InitiateResponse{
		ID:               payment.ID,
		Reference:        payment.Reference,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		ExpiresAt:        payment.ExpiresAt,
	})
}

// Verify reconciles a payment with the processor and returns its state.
func (h *Handler) Verify(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	payment, err := h.service.VerifyPayment(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		h.handlePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment.ToResponse())
}

// Get returns one of the caller's payments by reference.
func (h *Handler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	payment, err := h.service.GetPayment(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		h.handlePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment.ToResponse())
}

// List returns the caller's payment history.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	payments, err := h.service.ListPayments(c.Request.Context(), userID, limit)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	resp := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = p.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{"payments": resp})
}

// Status returns the caller's recent payments and subscription summary.
func (h *Handler) Status(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	payments, sub, err := h.service.PaymentStatus(c.Request.Context(), userID, limit)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	resp := &StatusResponse{Payments: make([]*PaymentResponse, len(payments))}
	for i, p := range payments {
		resp.Payments[i] = p.ToResponse()
	}
	if sub != nil {
		resp.Subscription = sub.ToResponse()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handlePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		response.NotFound(c, "payment not found")
	case errors.Is(err, ErrNotOwner):
		response.Forbidden(c, "")
	default:
		response.HandleError(c, err)
	}
}
