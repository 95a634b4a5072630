package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/middleware"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/internal/service"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

// CareerSubjectHandler handles curriculum endpoints.
type CareerSubjectHandler struct {
	service *service.CareerSubjectService
}

// NewCareerSubjectHandler constructs the handler.
func NewCareerSubjectHandler(svc *service.CareerSubjectService) *CareerSubjectHandler {
	return &CareerSubjectHandler{service: svc}
}

// List godoc
// @Summary List career subjects
// @Tags CareerSubjects
// @Produce json
// @Security BearerAuth
// @Param career_id query string false "Career ID"
// @Param semester query int false "Semester 1-9"
// @Success 200 {object} response.Envelope
// @Router /career-subjects [get]
func (h *CareerSubjectHandler) List(c *gin.Context) {
	semester, err := optionalIntQuery(c, "semester")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.CareerSubjectFilter{CareerID: strings.TrimSpace(c.Query("career_id")), Semester: semester}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Assign subjects to careers
// @Tags CareerSubjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body []dto.CreateCareerSubjectRequest true "Assignments"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /career-subjects [post]
func (h *CareerSubjectHandler) Create(c *gin.Context) {
	var reqs []dto.CreateCareerSubjectRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, bindError(err, "payload must be an array of assignments"))
		return
	}
	items, err := h.service.Create(c.Request.Context(), actor(c), reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, items)
}

// Update godoc
// @Summary Move a career subject to another semester
// @Tags CareerSubjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Career subject ID"
// @Param payload body dto.UpdateCareerSubjectRequest true "Semester"
// @Success 200 {object} response.Envelope
// @Router /career-subjects/{id} [patch]
func (h *CareerSubjectHandler) Update(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateCareerSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	item, err := h.service.UpdateSemester(c.Request.Context(), actor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Remove a career subject
// @Tags CareerSubjects
// @Produce json
// @Security BearerAuth
// @Param id path int true "Career subject ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /career-subjects/{id} [delete]
func (h *CareerSubjectHandler) Delete(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "career subject deleted")
}
