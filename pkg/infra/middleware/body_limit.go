package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// BodyLimit 限制请求体大小。Content-Length 超限直接拒绝，
// 否则用 http.MaxBytesReader 限制实际读取量。
func BodyLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize <= 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			logger.Warnw("Request body too large",
				"path", c.Request.URL.Path,
				"content_length", c.Request.ContentLength,
				"max_size", maxSize,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
