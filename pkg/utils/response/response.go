// Package response writes the JSON bodies of the HTTP API.
//
// Success bodies are endpoint specific and written as is. Every failure is
// written as {"code": <errno>, "message": "..."} with the HTTP status carried
// by the Errno.
package response

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK writes data with HTTP 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail 将 err 转换为 Errno 并写出，随后中止后续 handler。
// context 超时映射为 ErrRequestTimeout，客户端断开映射为 ErrClientClosed。
func Fail(c *gin.Context, err error) {
	e := ToErrno(err)
	c.AbortWithStatusJSON(e.HTTPStatus(), ErrorResponse{
		Code:    e.Code,
		Message: e.Message(Lang(c)),
	})
}

// ToErrno maps err onto the Errno table.
func ToErrno(err error) *errors.Errno {
	if err == nil {
		return errors.ErrInternal
	}
	var e *errors.Errno
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.ErrRequestTimeout.WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return errors.ErrClientClosed.WithCause(err)
	}
	return errors.ErrInternal.WithCause(err)
}

// Lang 根据 Accept-Language 选择消息语言，仅区分 zh 与 en。
func Lang(c *gin.Context) string {
	al := strings.ToLower(c.GetHeader("Accept-Language"))
	if strings.HasPrefix(al, "zh") {
		return "zh"
	}
	return "en"
}
