package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

type dbaService interface {
	SearchStudents(ctx context.Context, q string) ([]dto.StudentSearchResult, error)
	ResetPassword(ctx context.Context, req dto.ResetPasswordRequest) error
}

// DBAHandler serves the maintenance console. Routes sit behind middleware.DBAToken.
type DBAHandler struct {
	service dbaService
}

// NewDBAHandler constructs the handler.
func NewDBAHandler(svc dbaService) *DBAHandler {
	return &DBAHandler{service: svc}
}

// Validate godoc
// @Summary Check a maintenance token
// @Tags DBA
// @Produce json
// @Param X-DBA-Token header string false "Maintenance token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /dba/validate [get]
func (h *DBAHandler) Validate(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.TokenValidation{Valid: true}, nil)
}

// Search godoc
// @Summary Find students by name, email or id
// @Tags DBA
// @Produce json
// @Param q query string true "At least two characters"
// @Success 200 {object} response.Envelope
// @Router /dba/students/search [get]
func (h *DBAHandler) Search(c *gin.Context) {
	results, err := h.service.SearchStudents(c.Request.Context(), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// ResetPassword godoc
// @Summary Set a new password for a student
// @Tags DBA
// @Accept json
// @Produce json
// @Param payload body dto.ResetPasswordRequest true "Reset payload"
// @Success 200 {object} response.Envelope
// @Router /dba/students/reset-password [patch]
func (h *DBAHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid reset payload"))
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "password reset")
}
