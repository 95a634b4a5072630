package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

type authService interface {
	LoginAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error)
	LoginStudent(ctx context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error)
	RegisterStudent(ctx context.Context, req models.StudentRegisterRequest, ip, userAgent string) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.LoginResponse, error)
	Logout(ctx context.Context, claims *models.JWTClaims, refreshToken string) error
	Me(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error)
	ChangeStudentPassword(ctx context.Context, studentID int, req models.ChangePasswordRequest) error
	ChangeAdminPassword(ctx context.Context, username string, req models.ChangePasswordRequest) error
}

// AuthCookie configures the cookie mirroring the access token. An empty Name disables it.
type AuthCookie struct {
	Name   string
	Secure bool
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	cookie  AuthCookie
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookie AuthCookie) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie}
}

// AdminLogin godoc
// @Summary Authenticate admin
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.AdminLoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/admins/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req models.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.LoginAdmin(c.Request.Context(), req)
	h.respondWithSession(c, http.StatusOK, res, err)
}

// StudentLogin godoc
// @Summary Authenticate student
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.StudentLoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/students/login [post]
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req models.StudentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.LoginStudent(c.Request.Context(), req)
	h.respondWithSession(c, http.StatusOK, res, err)
}

// Register godoc
// @Summary Register student account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.StudentRegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/students/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.StudentRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	res, err := h.service.RegisterStudent(c.Request.Context(), req, c.ClientIP(), c.GetHeader("User-Agent"))
	h.respondWithSession(c, http.StatusCreated, res, err)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for new access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	h.respondWithSession(c, http.StatusOK, res, err)
}

// Logout godoc
// @Summary Logout
// @Description Revokes the given refresh token, or every session of the user when none is sent
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, bindError(err, "invalid logout payload"))
			return
		}
	}

	if err := h.service.Logout(c.Request.Context(), claims, payload.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}
	h.clearCookie(c)
	response.Message(c, "logged out")
}

// Me godoc
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info, err := h.service.Me(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// ChangeStudentPassword godoc
// @Summary Change student password
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/students/change-password [patch]
func (h *AuthHandler) ChangeStudentPassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if !claims.IsStudent() {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	if err := h.service.ChangeStudentPassword(c.Request.Context(), claims.StudentID, req); err != nil {
		response.Error(c, err)
		return
	}
	h.clearCookie(c)
	response.Message(c, "password updated")
}

// ChangeAdminPassword godoc
// @Summary Change admin password
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/admins/change-password [patch]
func (h *AuthHandler) ChangeAdminPassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if !claims.IsAdmin() {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	if err := h.service.ChangeAdminPassword(c.Request.Context(), claims.Username, req); err != nil {
		response.Error(c, err)
		return
	}
	h.clearCookie(c)
	response.Message(c, "password updated")
}

func (h *AuthHandler) respondWithSession(c *gin.Context, status int, res *models.LoginResponse, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.cookie.Name != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookie.Name, res.AccessToken, int(res.ExpiresIn), "/", "", h.cookie.Secure, true)
	}
	response.JSON(c, status, res, nil)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}
