package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// Recovery 将 handler 中的 panic 转换为 500 响应。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Panic recovered",
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c.Request.Context()),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				response.Fail(c, errors.ErrInternal.WithCause(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
