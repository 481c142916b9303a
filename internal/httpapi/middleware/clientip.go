package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/models"
)

// ClientIP puts the caller address on the request context so audit rows
// written further down pick it up.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := models.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
