package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omron-sinicx/robotiq-cri/internal/types"
)

const (
	permissionsKey = "permissions"
	subjectKey     = "subject"
	roleKey        = "role"
)

// Middleware validates the bearer token and stores subject, role and
// permissions in the gin context.
func (j *JWTHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid authorization header format", nil))
			return
		}

		claims, err := j.ValidateAccessToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid or expired token", nil))
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Set(roleKey, claims.Role)
		c.Set(permissionsKey, claims.Role.Permissions())
		c.Next()
	}
}

// RequirePermission checks if the caller has the required permission.
// Requests that passed no auth middleware are let through.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get(permissionsKey)
		if !exists {
			c.Next()
			return
		}

		for _, p := range perms.([]Permission) {
			if p == required {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			types.NewErrorResponse(types.CodeForbidden, "insufficient permissions", map[string]interface{}{
				"required": string(required),
			}))
	}
}

// Subject returns the token subject of an authenticated request.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
