package contact

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/attendsure/attendsure-api/internal/handler"
	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/service/contact"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
)

type Handler struct {
	service *contact.Service
}

func NewHandler(service *contact.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	contacts := r.Group("/contacts")
	{
		contacts.POST("", h.CreateContact)
		contacts.GET("", h.ListContacts)
		contacts.POST("/upload", h.UploadCSV)
		contacts.POST("/upload-json", h.UploadJSON)
	}
}

func (h *Handler) CreateContact(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewValidationErrorResponse(err))
		return
	}

	patient, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{"id": patient.ID}))
}

func (h *Handler) ListContacts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	patients, err := h.service.ListPatients(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}

func (h *Handler) UploadCSV(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("provide CSV file"))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	defer f.Close()

	rows, err := contact.ParseCSV(f)
	if err != nil {
		status := http.StatusBadRequest
		if appErr, ok := err.(*apperrors.AppError); ok {
			status = appErr.StatusCode()
		}
		c.JSON(status, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.BulkCreate(c.Request.Context(), rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) UploadJSON(c *gin.Context) {
	var rows []model.ContactRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewValidationErrorResponse(err))
		return
	}

	result, err := h.service.BulkCreate(c.Request.Context(), rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, result)
}
