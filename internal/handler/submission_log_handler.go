package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

type submissionLogService interface {
	List(ctx context.Context, query dto.SubmissionLogQuery) ([]models.SubmissionLog, *models.Pagination, error)
}

// SubmissionLogHandler lists administrative changes.
type SubmissionLogHandler struct {
	service submissionLogService
}

// NewSubmissionLogHandler constructs the handler.
func NewSubmissionLogHandler(svc submissionLogService) *SubmissionLogHandler {
	return &SubmissionLogHandler{service: svc}
}

// List godoc
// @Summary List submission logs
// @Tags SubmissionLogs
// @Produce json
// @Security BearerAuth
// @Param adminUsername query string false "Admin username"
// @Param studentId query int false "Student ID"
// @Param entity query string false "Entity"
// @Param entityId query string false "Entity ID"
// @Param action query string false "create, update or delete"
// @Param from query string false "YYYY-MM-DD, inclusive"
// @Param to query string false "YYYY-MM-DD, inclusive"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submission-logs [get]
func (h *SubmissionLogHandler) List(c *gin.Context) {
	studentID, err := optionalIntQuery(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.SubmissionLogQuery{
		AdminUsername: strings.TrimSpace(c.Query("adminUsername")),
		StudentID:     studentID,
		Entity:        strings.TrimSpace(c.Query("entity")),
		EntityID:      strings.TrimSpace(c.Query("entityId")),
		Action:        models.SubmissionAction(strings.ToLower(strings.TrimSpace(c.Query("action")))),
	}
	if query.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if query.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	query.Page, query.PageSize = pageQuery(c)

	logs, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

func dateQuery(c *gin.Context, name string) (*models.Date, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be a YYYY-MM-DD date")
	}
	return &d, nil
}
