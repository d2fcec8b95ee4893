package biz

import (
	"context"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// mapProviderError 将供应商错误映射到业务错误码。
// 已是 Errno 的错误与 context 错误原样返回。
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var e *errors.Errno
	if errors.As(err, &e) {
		return err
	}
	if llm.IsRateLimited(err) {
		return errors.ErrProviderRateLimited.WithCause(err)
	}
	return errors.ErrProviderFailed.WithCause(err)
}
