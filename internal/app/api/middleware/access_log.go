package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLogMiddleware logs HTTP access using the request-scoped logger
// previously attached by RequestLoggerMiddleware. Webhook routes run through
// it too, so the path falls back to the raw URL when no route pattern matched.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if l, ok := c.Get("logger"); ok {
			if log, ok := l.(*zap.SugaredLogger); ok && log != nil {
				log.Infow("http_access",
					"method", c.Request.Method,
					"path", path,
					"status", c.Writer.Status(),
					"latency_ms", latency.Milliseconds(),
					"bytes_out", c.Writer.Size(),
					"client_ip", c.ClientIP(),
				)
				return
			}
		}
	}
}
