package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/common"
)

const RequestIDHeader = "X-Request-ID"

// RequestID keeps a caller supplied id or mints a ULID, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" || len(rid) > 64 {
			id, err := common.NewULID()
			if err == nil {
				rid = id
			}
		}
		c.Set(common.RequestIDKey, rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}
