package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kart-io/docqa/pkg/llm"
)

// Policy 组合一个供应商调用所需的重试、熔断与限流设置。
type Policy struct {
	Retry   *RetryConfig
	Breaker *BreakerConfig
	// RateLimit 每秒允许的请求数，0 表示不限流。
	RateLimit float64
	// Burst 限流器突发容量。
	Burst int
}

type guard struct {
	provider string
	retry    *RetryConfig
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

func newGuard(provider, kind string, p *Policy) *guard {
	if p == nil {
		p = &Policy{}
	}
	return &guard{
		provider: provider,
		retry:    p.Retry,
		cb:       NewBreaker(provider+"-"+kind, p.Breaker),
		limiter:  NewLimiter(p.RateLimit, p.Burst),
	}
}

// do 依次经过限流、熔断、重试执行 fn
func (g *guard) do(ctx context.Context, op string, fn func() error) error {
	return RetryWithBackoff(ctx, g.retry, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if g.cb == nil {
			return fn()
		}
		_, err := g.cb.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return llm.WrapError(g.provider, op, http.StatusServiceUnavailable, err)
		}
		return err
	})
}

func (g *guard) state() string {
	if g.cb == nil {
		return "disabled"
	}
	return g.cb.State().String()
}

// ResilientEmbeddingProvider 带韧性功能的 Embedding Provider 包装器。
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	guard    *guard
}

// NewResilientEmbeddingProvider 创建带韧性功能的 Embedding Provider。
func NewResilientEmbeddingProvider(provider llm.EmbeddingProvider, policy *Policy) *ResilientEmbeddingProvider {
	return &ResilientEmbeddingProvider{
		provider: provider,
		guard:    newGuard(provider.Name(), "embedding", policy),
	}
}

// Embed 为多个文本生成向量嵌入。
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := r.guard.do(ctx, "embed", func() error {
		var err error
		result, err = r.provider.Embed(ctx, texts)
		return err
	})
	return result, err
}

// EmbedSingle 为单个文本生成向量嵌入。
func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := r.guard.do(ctx, "embed", func() error {
		var err error
		result, err = r.provider.EmbedSingle(ctx, text)
		return err
	})
	return result, err
}

// Name 返回被包装供应商的名称。
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name()
}

// BreakerState 返回熔断器状态（用于监控）。
func (r *ResilientEmbeddingProvider) BreakerState() string {
	return r.guard.state()
}

// ResilientChatProvider 带韧性功能的 Chat Provider 包装器。
type ResilientChatProvider struct {
	provider llm.ChatProvider
	guard    *guard
}

// NewResilientChatProvider 创建带韧性功能的 Chat Provider。
func NewResilientChatProvider(provider llm.ChatProvider, policy *Policy) *ResilientChatProvider {
	return &ResilientChatProvider{
		provider: provider,
		guard:    newGuard(provider.Name(), "chat", policy),
	}
}

// Generate 根据提示生成文本。
func (r *ResilientChatProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var result string
	err := r.guard.do(ctx, "generate", func() error {
		var err error
		result, err = r.provider.Generate(ctx, prompt)
		return err
	})
	return result, err
}

// Name 返回被包装供应商的名称。
func (r *ResilientChatProvider) Name() string {
	return r.provider.Name()
}

// BreakerState 返回熔断器状态（用于监控）。
func (r *ResilientChatProvider) BreakerState() string {
	return r.guard.state()
}

// IsRetryableError 判断错误是否可重试。
// 配额/限流错误不重试，直接返回给调用方。
func IsRetryableError(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		if pe.Kind == llm.KindRateLimited {
			return false
		}
		if pe.StatusCode == http.StatusRequestTimeout || pe.StatusCode >= 500 {
			return true
		}
		if pe.StatusCode != 0 {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
