package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/middleware"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actor is the admin username recorded on submission logs.
func actor(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		if claims.Username != "" {
			return claims.Username
		}
		return claims.Subject
	}
	return ""
}

func intParam(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return id, nil
}

// optionalIntQuery parses an integer query parameter; absent or empty yields nil.
func optionalIntQuery(c *gin.Context, name string) (*int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be an integer")
	}
	return &v, nil
}

// pageQuery reads page and limit, leaving bad or missing values to the service defaults.
func pageQuery(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit"))
	return page, limit
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
