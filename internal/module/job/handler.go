package job

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aditus/server/internal/shared/middleware"
	"github.com/aditus/server/internal/shared/response"
)

// Handler handles HTTP requests for job extraction and personalization.
type Handler struct {
	service *Service
}

// NewHandler creates a new job handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers job routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("/extract", h.Extract)
		jobs.POST("/personalize", h.Personalize)
	}
}

// Extract turns a URL, pasted text or screenshot into a structured
// posting.
func (h *Handler) Extract(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ExtractJob(c.Request.Context(), userID, ExtractInput{
		URL:         req.URL,
		Text:        req.Text,
		Screenshot:  req.Screenshot,
		ContentType: req.ContentType,
	})
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			response.BadRequest(c, err.Error())
			return
		}
		response.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, &ExtractResponse{
		Key:     result.Key,
		Posting: result.Posting,
		Cached:  result.Cached,
	})
}

// Personalize tailors the caller's master profile to a posting.
func (h *Handler) Personalize(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req PersonalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.PersonalizeCV(c.Request.Context(), userID, req.JobKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNoProfile):
			response.BadRequest(c, err.Error())
		default:
			response.HandleError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, &PersonalizeResponse{
		Key:     result.Key,
		Content: result.Content,
		Cached:  result.Cached,
	})
}
