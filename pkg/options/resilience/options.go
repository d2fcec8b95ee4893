// Package resilience provides provider resilience options.
package resilience

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/llm/resilience"
	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 重试、熔断与限流配置，作用于嵌入和生成两个 provider。
type Options struct {
	MaxAttempts  int           `json:"max-attempts" mapstructure:"max-attempts"`
	InitialDelay time.Duration `json:"initial-delay" mapstructure:"initial-delay"`
	MaxDelay     time.Duration `json:"max-delay" mapstructure:"max-delay"`

	BreakerEnabled      bool          `json:"breaker-enabled" mapstructure:"breaker-enabled"`
	BreakerTimeout      time.Duration `json:"breaker-timeout" mapstructure:"breaker-timeout"`
	BreakerMinRequests  uint32        `json:"breaker-min-requests" mapstructure:"breaker-min-requests"`
	BreakerFailureRatio float64       `json:"breaker-failure-ratio" mapstructure:"breaker-failure-ratio"`

	// RateLimit 每秒请求数，0 表示不限流。
	RateLimit float64 `json:"rate-limit" mapstructure:"rate-limit"`
	Burst     int     `json:"burst" mapstructure:"burst"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	r := resilience.DefaultRetryConfig()
	b := resilience.DefaultBreakerConfig()
	return &Options{
		MaxAttempts:         r.MaxAttempts,
		InitialDelay:        r.InitialDelay,
		MaxDelay:            r.MaxDelay,
		BreakerEnabled:      b.Enabled,
		BreakerTimeout:      b.Timeout,
		BreakerMinRequests:  b.MinRequests,
		BreakerFailureRatio: b.FailureRatio,
		Burst:               1,
	}
}

// AddFlags adds flags for resilience options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "resilience."
	fs.IntVar(&o.MaxAttempts, p+"max-attempts", o.MaxAttempts, "Provider call attempts including the first (1 = no retry).")
	fs.DurationVar(&o.InitialDelay, p+"initial-delay", o.InitialDelay, "Initial retry backoff.")
	fs.DurationVar(&o.MaxDelay, p+"max-delay", o.MaxDelay, "Maximum retry backoff.")
	fs.BoolVar(&o.BreakerEnabled, p+"breaker-enabled", o.BreakerEnabled, "Enable the provider circuit breaker.")
	fs.DurationVar(&o.BreakerTimeout, p+"breaker-timeout", o.BreakerTimeout, "How long the breaker stays open.")
	fs.Uint32Var(&o.BreakerMinRequests, p+"breaker-min-requests", o.BreakerMinRequests, "Requests needed before the breaker may trip.")
	fs.Float64Var(&o.BreakerFailureRatio, p+"breaker-failure-ratio", o.BreakerFailureRatio, "Failure ratio that trips the breaker.")
	fs.Float64Var(&o.RateLimit, p+"rate-limit", o.RateLimit, "Client-side provider requests per second (0 = unlimited).")
	fs.IntVar(&o.Burst, p+"burst", o.Burst, "Client-side rate limiter burst.")
}

// Validate validates the resilience options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resilience.max-attempts must be at least 1"))
	}
	if o.BreakerFailureRatio <= 0 || o.BreakerFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("resilience.breaker-failure-ratio must be in (0, 1]"))
	}
	if o.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("resilience.rate-limit must not be negative"))
	}
	if o.RateLimit > 0 && o.Burst < 1 {
		errs = append(errs, fmt.Errorf("resilience.burst must be at least 1 when rate limiting"))
	}
	return errs
}

// ToPolicy converts options to a resilience.Policy.
func (o *Options) ToPolicy() *resilience.Policy {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = o.MaxAttempts
	retry.InitialDelay = o.InitialDelay
	retry.MaxDelay = o.MaxDelay

	breaker := resilience.DefaultBreakerConfig()
	breaker.Enabled = o.BreakerEnabled
	breaker.Timeout = o.BreakerTimeout
	breaker.MinRequests = o.BreakerMinRequests
	breaker.FailureRatio = o.BreakerFailureRatio

	return &resilience.Policy{
		Retry:     retry,
		Breaker:   breaker,
		RateLimit: o.RateLimit,
		Burst:     o.Burst,
	}
}
