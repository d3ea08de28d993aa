package call

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/attendsure/attendsure-api/internal/handler"
	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/service/call"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
)

type Handler struct {
	service *call.Service
	// detailCache holds detail responses for terminal calls only. Completed
	// and failed calls never change state, so entries cannot go stale.
	detailCache *gocache.Cache
}

func NewHandler(service *call.Service) *Handler {
	return &Handler{
		service:     service,
		detailCache: gocache.New(15*time.Minute, time.Hour),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	calls := r.Group("/calls")
	{
		calls.POST("/launch", h.LaunchCalls)
		calls.GET("", h.ListCalls)
		calls.GET("/:id", h.GetCall)
	}
}

func (h *Handler) LaunchCalls(c *gin.Context) {
	var req model.LaunchCallsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewValidationErrorResponse(err))
		return
	}

	callIDs, err := h.service.LaunchCalls(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.LaunchCallsResponse{CallIDs: callIDs})
}

func (h *Handler) ListCalls(c *gin.Context) {
	details, err := h.service.ListCalls(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(details))
}

func (h *Handler) GetCall(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid call ID"))
		return
	}

	key := fmt.Sprintf("call:%d", id)
	if cached, ok := h.detailCache.Get(key); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached))
		return
	}

	detail, err := h.service.GetCall(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if detail.Call.Terminal() {
		h.detailCache.Set(key, detail, gocache.DefaultExpiration)
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail))
}

func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
}
