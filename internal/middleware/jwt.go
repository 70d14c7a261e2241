package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ueexam/backend/internal/auth"
	"github.com/ueexam/backend/pkg/response"
)

// Context keys for the authenticated staff account.
const (
	ContextUserID    = "user_id"
	ContextUserUID   = "user_uid"
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
)

// JWT validates the Bearer token on management API requests and stores the
// account claims in the gin context. The streaming endpoints never pass
// through here; they are addressed by URL path alone.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserUID, claims.UID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
