package biz

import (
	"context"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// IndexState 索引状态。
type IndexState string

const (
	// StateEmpty 尚未入库任何文档。
	StateEmpty IndexState = "empty"
	// StateReady 索引可查询。
	StateReady IndexState = "ready"
)

// Lifecycle 管理唯一的索引：Empty -> Ready -> Ready。
// 重建之间互斥；查询不加锁，由后端保证替换对读方原子可见。
type Lifecycle struct {
	mu    sync.Mutex
	index store.VectorIndex
}

// NewLifecycle creates a lifecycle manager for index.
func NewLifecycle(index store.VectorIndex) *Lifecycle {
	return &Lifecycle{index: index}
}

// HasIndex 判断索引是否存在，后端错误视为不存在。
func (l *Lifecycle) HasIndex(ctx context.Context) bool {
	ok, err := l.index.Exists(ctx)
	if err != nil {
		logger.Warnw("Index existence check failed", "backend", l.index.Backend(), "error", err)
		return false
	}
	return ok
}

// State returns the current state.
func (l *Lifecycle) State(ctx context.Context) IndexState {
	if l.HasIndex(ctx) {
		return StateReady
	}
	return StateEmpty
}

// Rebuild 在互斥锁内执行 build。build 失败时旧索引保持不变（由后端保证）。
func (l *Lifecycle) Rebuild(ctx context.Context, build func(ctx context.Context, index store.VectorIndex) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return build(ctx, l.index)
}
