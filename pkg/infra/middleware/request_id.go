// Package middleware provides the gin middleware chain of the HTTP surface.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/utils/id"
)

// HeaderXRequestID is the header carrying the request ID.
const HeaderXRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestID 为每个请求分配 ID（优先沿用请求头），写回响应头并放入 context。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = id.NewULID()
		}
		c.Header(HeaderXRequestID, rid)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request ID from ctx, or "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
