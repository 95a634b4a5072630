package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

type periodService interface {
	List(ctx context.Context) ([]models.Period, error)
	Classified(ctx context.Context) (*models.PeriodClassification, error)
	Create(ctx context.Context, actor string, req dto.CreatePeriodRequest) (*models.Period, error)
	Update(ctx context.Context, actor, id string, req dto.UpdatePeriodRequest) (*models.Period, error)
	Delete(ctx context.Context, actor, id string) error
	AdvanceSemester(ctx context.Context, actor string, req dto.AdvanceSemesterRequest) (*dto.AdvanceSemesterResult, error)
}

// PeriodHandler handles enrollment period endpoints.
type PeriodHandler struct {
	service periodService
}

// NewPeriodHandler constructs a period handler.
func NewPeriodHandler(svc periodService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// List godoc
// @Summary List periods
// @Tags Periods
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	periods, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// Classified godoc
// @Summary Periods split into active, upcoming and past
// @Tags Periods
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /periods/classified [get]
func (h *PeriodHandler) Classified(c *gin.Context) {
	out, err := h.service.Classified(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Create godoc
// @Summary Create period
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreatePeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req dto.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	period, err := h.service.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Update godoc
// @Summary Update period dates or active flag
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body dto.UpdatePeriodRequest true "Period payload"
// @Success 200 {object} response.Envelope
// @Router /periods/{id} [patch]
func (h *PeriodHandler) Update(c *gin.Context) {
	var req dto.UpdatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	period, err := h.service.Update(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Delete godoc
// @Summary Delete period
// @Tags Periods
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /periods/{id} [delete]
func (h *PeriodHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "period deleted")
}

// AdvanceSemester godoc
// @Summary Activate a period and promote every active student
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.AdvanceSemesterRequest true "New period"
// @Success 200 {object} response.Envelope
// @Router /periods/advance-semester [post]
func (h *PeriodHandler) AdvanceSemester(c *gin.Context) {
	var req dto.AdvanceSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "newPeriodId is required"))
		return
	}
	result, err := h.service.AdvanceSemester(c.Request.Context(), actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
