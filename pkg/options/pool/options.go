// Package pool provides worker pool options.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 嵌入批次并发池配置。
type Options struct {
	// Capacity 并发执行的嵌入批次数。
	Capacity int `json:"capacity" mapstructure:"capacity"`
	// ExpiryDuration 空闲 worker 过期时间。
	ExpiryDuration time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	// Nonblocking 池满时直接拒绝。
	Nonblocking bool `json:"nonblocking" mapstructure:"nonblocking"`
	// MaxBlockingTasks 阻塞等待的最大任务数，0 表示不限。
	MaxBlockingTasks int `json:"max-blocking-tasks" mapstructure:"max-blocking-tasks"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	d := pool.DefaultPoolConfig()
	return &Options{
		Capacity:       d.Capacity,
		ExpiryDuration: d.ExpiryDuration,
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.Capacity, p+"pool.capacity", o.Capacity, "Number of embedding batches run concurrently.")
	fs.DurationVar(&o.ExpiryDuration, p+"pool.expiry-duration", o.ExpiryDuration, "Idle worker expiry.")
	fs.BoolVar(&o.Nonblocking, p+"pool.nonblocking", o.Nonblocking, "Reject tasks instead of waiting when the pool is full.")
	fs.IntVar(&o.MaxBlockingTasks, p+"pool.max-blocking-tasks", o.MaxBlockingTasks, "Maximum tasks waiting for a worker (0 = unlimited).")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be positive, got %d", o.Capacity))
	}
	if o.MaxBlockingTasks < 0 {
		errs = append(errs, fmt.Errorf("pool.max-blocking-tasks must not be negative"))
	}
	return errs
}

// ToConfig converts options to a pool.Config.
func (o *Options) ToConfig() *pool.Config {
	return &pool.Config{
		Capacity:         o.Capacity,
		ExpiryDuration:   o.ExpiryDuration,
		Nonblocking:      o.Nonblocking,
		MaxBlockingTasks: o.MaxBlockingTasks,
	}
}
