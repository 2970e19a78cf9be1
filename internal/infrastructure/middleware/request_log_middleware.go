package middleware

import (
	"time"

	"voxrelay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogMiddleware writes one access log line per request, carrying
// the trace id when the tracing middleware runs before it.
func RequestLogMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		cl.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
