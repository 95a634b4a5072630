package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

// Self is the pseudo role granting students access to their own record. The
// record is identified by the :id path parameter or the studentId query parameter.
const Self = "SELF"

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == Self {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf && claims.IsStudent() && ownsTarget(c, claims) {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// ownsTarget accepts requests naming the caller, or naming nobody so that the
// handler falls back to the caller.
func ownsTarget(c *gin.Context, claims *models.JWTClaims) bool {
	self := models.StudentSubject(claims.StudentID)
	if target := c.Param("id"); target != "" {
		return target == self
	}
	if target := c.Query("studentId"); target != "" {
		return target == self
	}
	return true
}
