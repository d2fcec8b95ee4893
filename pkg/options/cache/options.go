// Package cache provides query cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 查询缓存配置。
type Options struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置（默认关闭）。
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "docqa:answer:",
		Redis:     redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"cache.enabled", o.Enabled, "Enable the answer cache.")
	fs.DurationVar(&o.TTL, p+"cache.ttl", o.TTL, "Answer cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"cache.key-prefix", o.KeyPrefix, "Answer cache key prefix.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs, append(prefixes, "cache")...)
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.Redis != nil {
		errs = append(errs, o.Redis.Validate()...)
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}
