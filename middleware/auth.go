package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/config"
)

const (
	UserIDKey = "user_id"
	// AdminKeyHeader carries the shared admin key checked by the admin routes.
	AdminKeyHeader = "X-Admin-Key"
)

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// bearer extracts the token from the Authorization header, falling back to
// the token query parameter used by EventSource clients.
func bearer(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return ""
		}
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Auth validates the JWT and stores the user id in the context.
func Auth(sec config.SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(int64)
	}
	return 0
}
