package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/response"
)

// DBATokenHeader may carry the maintenance token instead of the token query parameter.
const DBATokenHeader = "X-DBA-Token"

// TokenChecker accepts or rejects a maintenance token.
type TokenChecker interface {
	ValidToken(token string) bool
}

// DBAToken guards the break-glass maintenance routes.
func DBAToken(checker TokenChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(DBATokenHeader)
		if token == "" {
			token = c.Query("token")
		}
		if !checker.ValidToken(token) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid maintenance token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
