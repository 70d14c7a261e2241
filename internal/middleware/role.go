package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ueexam/backend/pkg/response"
)

// RequireRole gates a route to the given account roles. Must run after JWT,
// which is what puts the role into the context.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, _ := c.Get(ContextUserRole)
		name, ok := role.(string)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[name]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
