// Package pool provides the bounded worker pool used to fan out provider calls.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// PreAlloc 是否预分配内存
	PreAlloc bool
	// Nonblocking 提交任务是否非阻塞（若池满则返回错误）
	Nonblocking bool
	// MaxBlockingTasks 当 Nonblocking=false 时，最大等待任务数（0 表示无限制）
	MaxBlockingTasks int
	// PanicHandler 恐慌处理函数
	PanicHandler func(interface{})
}

// DefaultPoolConfig 返回默认池配置
func DefaultPoolConfig() *Config {
	return &Config{
		Capacity:       4,
		ExpiryDuration: 10 * time.Second,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	pool     *ants.Pool
	config   *Config
	stats    *poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStatsCounter struct {
	SubmittedTasks atomic.Int64
	CompletedTasks atomic.Int64
	FailedTasks    atomic.Int64
	RejectedTasks  atomic.Int64
	PanicRecovered atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Capacity       int   // 池容量
	Running        int   // 正在运行的 goroutine 数
	SubmittedTasks int64 // 已提交任务数
	CompletedTasks int64 // 已完成任务数
	FailedTasks    int64 // 失败任务数
	RejectedTasks  int64 // 拒绝任务数
	PanicRecovered int64 // 恢复的 panic 数
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{
		name:   name,
		config: config,
		stats:  &poolStatsCounter{},
	}

	pool, err := ants.NewPool(config.Capacity, buildAntsOptions(name, config)...)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool

	logger.Infow("Worker pool created",
		"name", name,
		"capacity", config.Capacity,
		"preAlloc", config.PreAlloc,
	)

	return p, nil
}

func buildAntsOptions(name string, config *Config) []ants.Option {
	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}

	if config.PanicHandler != nil {
		opts = append(opts, ants.WithPanicHandler(config.PanicHandler))
	} else {
		opts = append(opts, ants.WithPanicHandler(func(p interface{}) {
			logger.Errorw("Worker panic recovered",
				"pool", name,
				"panic", p,
			)
		}))
	}

	return opts
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Cap 返回池容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.stats.SubmittedTasks.Add(1)
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.PanicRecovered.Add(1)
				p.stats.FailedTasks.Add(1)
				// 交给 ants 的 PanicHandler 记录
				panic(r)
			}
			p.stats.CompletedTasks.Add(1)
		}()

		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.stats.RejectedTasks.Add(1)
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		p.stats.FailedTasks.Add(1)
		return err
	}

	return nil
}

// RunAll 在池中并发执行 tasks 并等待全部结束。
// 任一任务失败后取消其余任务的 ctx，返回第一个错误。
// 任务内的 panic 会被转换为错误。
func (p *Pool) RunAll(ctx context.Context, tasks []func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.stats.PanicRecovered.Add(1)
					p.stats.FailedTasks.Add(1)
					fail(fmt.Errorf("pool %s: task panicked: %v", p.name, r))
				}
			}()

			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			if err := task(ctx); err != nil {
				p.stats.FailedTasks.Add(1)
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}

	wg.Wait()
	return firstErr
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Load() {
		return
	}

	p.closed.Store(true)
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout 带超时关闭池，等待任务完成直到超时。timeout <= 0 等同于 Release。
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		p.Release()
		return nil
	}

	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Load() {
		return nil
	}

	p.closed.Store(true)
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("pool %s: %w", p.name, err)
	}
	logger.Infow("Worker pool released", "name", p.name)
	return nil
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:       p.Cap(),
		Running:        p.Running(),
		SubmittedTasks: p.stats.SubmittedTasks.Load(),
		CompletedTasks: p.stats.CompletedTasks.Load(),
		FailedTasks:    p.stats.FailedTasks.Load(),
		RejectedTasks:  p.stats.RejectedTasks.Load(),
		PanicRecovered: p.stats.PanicRecovered.Load(),
	}
}
