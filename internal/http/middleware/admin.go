package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	AdminKeyHeader   = "X-Admin-Key"
	WebhookKeyHeader = "X-Webhook-Key"
)

// AdminKey guards the operator API. An empty key disables the check.
func AdminKey(required string) gin.HandlerFunc {
	return headerKey(AdminKeyHeader, required, "Invalid admin key")
}

// WebhookKey guards the messaging provider callback.
func WebhookKey(required string) gin.HandlerFunc {
	return headerKey(WebhookKeyHeader, required, "Invalid webhook key")
}

func headerKey(header, required, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		key := c.GetHeader(header)
		if subtle.ConstantTimeCompare([]byte(key), []byte(required)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": message,
				},
			})
			return
		}
		c.Next()
	}
}
