package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attendsure/attendsure-api/internal/handler"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
)

const signatureHeader = "X-Vapi-Signature"

// EndOfCallProcessor applies a provider end-of-call notification.
type EndOfCallProcessor interface {
	ProcessEndOfCall(ctx context.Context, signature string, body []byte) error
}

type Handler struct {
	service EndOfCallProcessor
}

func NewHandler(service EndOfCallProcessor) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/vapi/end-of-call", h.EndOfCall)
}

func (h *Handler) EndOfCall(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read body"))
		return
	}

	signature := c.GetHeader(signatureHeader)
	if err := h.service.ProcessEndOfCall(c.Request.Context(), signature, body); err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
