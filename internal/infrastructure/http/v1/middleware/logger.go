package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeledger/pkg/logger"
)

// Logger writes one access line per request. Health-check and scrape traffic is
// skipped; 4xx responses log at warn and 5xx at error.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/metrics" || strings.HasPrefix(path, "/health/") {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("request failed", fields...)
		case status >= 400:
			l.Warnw("request rejected", fields...)
		default:
			l.Infow("request served", fields...)
		}
	}
}
