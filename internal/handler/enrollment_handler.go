package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

// IdempotencyKeyHeader lets clients retry a batch submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

type enrollmentService interface {
	SubmitBatch(ctx context.Context, studentID int, key string, req dto.EnrollmentBatchRequest) (*dto.EnrollmentBatchResponse, bool, error)
	Status(ctx context.Context, studentID int) (*dto.EnrollmentStatusResponse, error)
	Report(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentReportRow, *models.Pagination, error)
	Details(ctx context.Context, filter models.EnrollmentDetailFilter) (*dto.EnrollmentDetailsResponse, error)
}

// EnrollmentHandler exposes batch enrollment and the enrollment reports.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Batch godoc
// @Summary Submit the full selection for a period
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Retry key"
// @Param payload body dto.EnrollmentBatchRequest true "Selection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/batch [post]
func (h *EnrollmentHandler) Batch(c *gin.Context) {
	claims := claimsFromContext(c)
	if !claims.IsStudent() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students can enroll"))
		return
	}
	var req dto.EnrollmentBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid enrollment batch"))
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	res, replayed, err := h.service.SubmitBatch(c.Request.Context(), claims.StudentID, key, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if replayed {
		c.Header(ReplayedHeader, "true")
		response.JSON(c, http.StatusCreated, res, nil, map[string]interface{}{"replayed": true})
		return
	}
	response.Created(c, res)
}

// MyStatus godoc
// @Summary Enrollment status for the active period
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param studentId query int false "Student ID, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /enrollments/my-status [get]
func (h *EnrollmentHandler) MyStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	studentID := claims.StudentID
	if raw := strings.TrimSpace(c.Query("studentId")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId must be a positive integer"))
			return
		}
		studentID = id
	}
	if studentID == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
		return
	}

	status, err := h.service.Status(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Report godoc
// @Summary Enrollment totals per career subject, group and type
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param search query string false "Subject or career"
// @Param careerId query string false "Career ID"
// @Param group query int false "Group"
// @Param periodId query string false "Period, defaults to the active one"
// @Param type query string false "NORMAL, ADELANTO or RECURSAMIENTO"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) Report(c *gin.Context) {
	group, err := optionalIntQuery(c, "group")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		CareerID: strings.ToUpper(strings.TrimSpace(c.Query("careerId"))),
		Group:    group,
		PeriodID: strings.ToUpper(strings.TrimSpace(c.Query("periodId"))),
		Type:     models.EnrollmentType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
	}
	filter.Page, filter.PageSize = pageQuery(c)

	rows, pagination, err := h.service.Report(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Details godoc
// @Summary Students behind one report row
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param careerSubjectId query int true "Career subject ID"
// @Param group query int false "Group"
// @Param type query string false "Enrollment type"
// @Param periodId query string false "Period, defaults to the active one"
// @Success 200 {object} response.Envelope
// @Router /enrollments/enrollment-details [get]
func (h *EnrollmentHandler) Details(c *gin.Context) {
	careerSubjectID, err := optionalIntQuery(c, "careerSubjectId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if careerSubjectID == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "careerSubjectId is required"))
		return
	}
	group, err := optionalIntQuery(c, "group")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentDetailFilter{
		CareerSubjectID: *careerSubjectID,
		Group:           group,
		Type:            models.EnrollmentType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
		PeriodID:        strings.ToUpper(strings.TrimSpace(c.Query("periodId"))),
	}
	details, err := h.service.Details(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}
