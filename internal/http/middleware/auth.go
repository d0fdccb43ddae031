package middleware

import (
	"github.com/gin-gonic/gin"
)

const userIDKey = "currentUserID"

// retrieves the authenticated user id from Gin context (after JWTMiddleware has run).
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
