package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout 为请求 context 设置截止时间。
// handler 在同一 goroutine 中执行，超时由下游观察 ctx 并返回 ErrRequestTimeout。
func Timeout(timeout time.Duration, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if timeout <= 0 || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
