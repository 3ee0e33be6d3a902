package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vendstock/pkg/logger"
)

// Logger middleware logs HTTP requests with timing and status.
// Probe and scrape traffic is logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case strings.HasPrefix(path, "/health") || path == "/metrics":
			l.Debugw("http request", fields...)
		case status >= 500:
			l.Errorw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}
