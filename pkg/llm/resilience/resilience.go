// Package resilience 提供 LLM 调用的韧性模式：重试、熔断器、客户端限流。
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kart-io/docqa/pkg/llm"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（包括首次调用），1 表示不重试。
	MaxAttempts int
	// InitialDelay 初始延迟时间。
	InitialDelay time.Duration
	// MaxDelay 最大延迟时间。
	MaxDelay time.Duration
	// Multiplier 延迟倍增因子（指数退避）。
	Multiplier float64
	// RetryableErrors 可重试的错误判断函数。
	RetryableErrors func(error) bool
}

// DefaultRetryConfig 返回默认重试配置（不重试）。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     1,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RetryableErrors: IsRetryableError,
	}
}

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// Enabled 是否启用熔断器。
	Enabled bool
	// MaxRequests 半开状态允许通过的最大请求数。
	MaxRequests uint32
	// Interval 关闭状态下清零计数的周期。
	Interval time.Duration
	// Timeout 打开状态持续多久后进入半开。
	Timeout time.Duration
	// MinRequests 触发熔断判断的最小请求数。
	MinRequests uint32
	// FailureRatio 触发熔断的失败率。
	FailureRatio float64
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:      true,
		MaxRequests:  5,
		Interval:     10 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// NewBreaker 根据配置创建熔断器，未启用时返回 nil。
func NewBreaker(name string, cfg *BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		// 调用方主动取消、配额/限流不计入失败，限流错误需原样返回给调用方
		IsSuccessful: func(err error) bool {
			return err == nil || isContextError(err) || llm.IsRateLimited(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// NewLimiter 创建客户端限流器，rps <= 0 时返回 nil（不限流）。
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RetryWithBackoff 使用指数退避重试函数。
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			logger.Debugw("error is not retryable", "error", err.Error())
			return err
		}

		if attempt >= attempts {
			if attempts > 1 {
				logger.Warnw("max retry attempts reached",
					"attempts", attempt,
					"error", err.Error(),
				)
				return fmt.Errorf("max retry attempts (%d) reached: %w", attempts, lastErr)
			}
			return err
		}

		logger.Debugw("retrying after delay",
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return lastErr
}
