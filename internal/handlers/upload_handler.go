package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dataload-service/internal/middleware"
	"dataload-service/internal/models"
	"dataload-service/internal/repository"
	"dataload-service/internal/services"
)

// UploadServiceAPI is the part of the upload service the HTTP layer uses
type UploadServiceAPI interface {
	Submit(ctx context.Context, in services.SubmitInput) (*models.UploadSession, error)
	GetSession(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error)
	ListSessions(ctx context.Context, tenantID string, filter repository.SessionFilter) ([]models.UploadSession, int64, error)
	GetErrors(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, []models.RowError, error)
}

type UploadHandler struct {
	service        UploadServiceAPI
	maxUploadBytes int64
	logger         *logrus.Entry
}

func NewUploadHandler(service UploadServiceAPI, maxUploadBytes int64, logger *logrus.Logger) *UploadHandler {
	return &UploadHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.WithField("component", "upload_handler"),
	}
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: code, Message: message},
	})
}

// Upload accepts a catalog file and queues it for loading
// @Summary Upload a catalog file
// @Description Stores a CSV or XLSX file and creates a pending upload session
// @Tags Dataload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Param load_type formData string true "category, brand, attribute, return_policy, product, product_item, product_price or meta_tag"
// @Success 202 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /dataload/uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		errorJSON(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds the maximum size of %d bytes", h.maxUploadBytes))
		return
	}

	loadType := c.PostForm("load_type")
	if loadType == "" {
		errorJSON(c, http.StatusBadRequest, "LOAD_TYPE_REQUIRED", "load_type is required")
		return
	}

	session, err := h.service.Submit(c.Request.Context(), services.SubmitInput{
		TenantID:    tenantID,
		LoadType:    loadType,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		SubmittedBy: middleware.GetUserID(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownLoadType):
			errorJSON(c, http.StatusBadRequest, "INVALID_LOAD_TYPE", err.Error())
		case errors.Is(err, services.ErrUnsupportedFormat):
			errorJSON(c, http.StatusBadRequest, "INVALID_FORMAT", "Only CSV and XLSX files are supported")
		case errors.Is(err, services.ErrPrerequisiteMissing):
			errorJSON(c, http.StatusConflict, "PREREQUISITE_MISSING", err.Error())
		default:
			h.logger.WithError(err).WithField("tenant_id", tenantID).Error("Upload failed")
			errorJSON(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to accept upload")
		}
		return
	}

	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: session})
}

// GetSession returns the status of an upload session
// @Summary Get upload session
// @Tags Dataload
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /dataload/sessions/{id} [get]
func (h *UploadHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// ListSessions lists the tenant's upload sessions, newest first
// @Summary List upload sessions
// @Tags Dataload
// @Produce json
// @Param status query string false "Filter by status"
// @Param load_type query string false "Filter by load type"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} models.ListResponse
// @Router /dataload/sessions [get]
func (h *UploadHandler) ListSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := repository.SessionFilter{
		Status: models.SessionStatus(c.Query("status")),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if lt := c.Query("load_type"); lt != "" {
		parsed, ok := models.ParseLoadType(lt)
		if !ok {
			errorJSON(c, http.StatusBadRequest, "INVALID_LOAD_TYPE", fmt.Sprintf("unknown load type %q", lt))
			return
		}
		filter.LoadType = parsed
	}

	sessions, total, err := h.service.ListSessions(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list upload sessions")
		errorJSON(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to retrieve upload sessions")
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, models.ListResponse{
		Success: true,
		Data:    sessions,
		Pagination: &models.PaginationInfo{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

// GetSessionErrors returns the row error report of a finished session
// @Summary Get upload session errors
// @Tags Dataload
// @Produce json,text/csv
// @Param id path string true "Session ID"
// @Param format query string false "json or csv" default(json)
// @Success 200 {object} models.SessionErrorsResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /dataload/sessions/{id}/errors [get]
func (h *UploadHandler) GetSessionErrors(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, rowErrors, err := h.service.GetErrors(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.sessionError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		writeErrorsCSV(c, session, rowErrors)
		return
	}
	c.JSON(http.StatusOK, models.SessionErrorsResponse{
		SessionID:  session.ID.String(),
		Status:     session.Status,
		ErrorCount: len(rowErrors),
		Errors:     rowErrors,
	})
}

func writeErrorsCSV(c *gin.Context, session *models.UploadSession, rowErrors []models.RowError) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_errors.csv", session.ID))
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write([]string{"row_number", "field_name", "error_kind", "error_message", "offending_value"})
	for _, e := range rowErrors {
		writer.Write([]string{
			strconv.Itoa(e.RowNumber),
			e.Field(),
			string(e.ErrorKind),
			e.ErrorMessage,
			e.OffendingValue,
		})
	}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_ID", "Session ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *UploadHandler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Upload session not found")
	case errors.Is(err, services.ErrSessionNotFinished):
		errorJSON(c, http.StatusConflict, "NOT_FINISHED", "Upload session is still being processed")
	default:
		h.logger.WithError(err).Error("Failed to load upload session")
		errorJSON(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to retrieve upload session")
	}
}
