package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// DefaultSkipPaths 不记录访问日志的路径。
var DefaultSkipPaths = []string{"/", "/metrics"}

// Logger 记录每个请求的访问日志。
func Logger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"latency_ms", latency.Milliseconds(),
		}
		if rid := GetRequestID(c.Request.Context()); rid != "" {
			fields = append(fields, "request_id", rid)
		}
		if tid := tracing.TraceIDFromContext(c.Request.Context()); tid != "" {
			fields = append(fields, "trace_id", tid)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Errorw("HTTP Request", fields...)
		case status >= 400:
			logger.Warnw("HTTP Request", fields...)
		default:
			logger.Infow("HTTP Request", fields...)
		}
	}
}
