package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/middleware"
	"github.com/noah-isme/preenroll-api/internal/service"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

// CareerHandler handles career endpoints.
type CareerHandler struct {
	service *service.CareerService
}

// NewCareerHandler constructs a career handler.
func NewCareerHandler(svc *service.CareerService) *CareerHandler {
	return &CareerHandler{service: svc}
}

// List godoc
// @Summary List careers
// @Tags Careers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /careers [get]
func (h *CareerHandler) List(c *gin.Context) {
	careers, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, careers, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create career
// @Tags Careers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCareerRequest true "Career payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /careers [post]
func (h *CareerHandler) Create(c *gin.Context) {
	var req dto.CreateCareerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	career, err := h.service.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, career)
}

// Update godoc
// @Summary Rename career
// @Tags Careers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Career ID"
// @Param payload body dto.UpdateCareerRequest true "Career payload"
// @Success 200 {object} response.Envelope
// @Router /careers/{id} [patch]
func (h *CareerHandler) Update(c *gin.Context) {
	var req dto.UpdateCareerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	career, err := h.service.Update(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, career, nil)
}

// Delete godoc
// @Summary Delete career
// @Tags Careers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Career ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /careers/{id} [delete]
func (h *CareerHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "career deleted")
}
