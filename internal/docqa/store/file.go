package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// BackendFile 文件快照后端名称。
const BackendFile = "file"

// SnapshotName 快照文件名。
const SnapshotName = "index.json"

// snapshot 快照文件内容。
type snapshot struct {
	Manifest Manifest `json:"manifest"`
	Entries  []entry  `json:"entries"`
}

// FileIndex 将整个索引保存为一个 JSON 快照文件，查询为精确暴力检索。
// 已加载的快照缓存在内存中，文件的 mtime/size 变化时重新加载。
type FileIndex struct {
	dir  string
	path string

	mu      sync.RWMutex
	cached  *snapshot
	modTime time.Time
	size    int64
}

var _ VectorIndex = (*FileIndex)(nil)

// NewFileIndex creates a file-backed index rooted at dir.
func NewFileIndex(dir string) (*FileIndex, error) {
	if dir == "" {
		return nil, fmt.Errorf("index directory is required")
	}
	if err := docutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return &FileIndex{
		dir:  dir,
		path: filepath.Join(dir, SnapshotName),
	}, nil
}

// Path returns the snapshot file path.
func (f *FileIndex) Path() string {
	return f.path
}

// Backend returns the backend name.
func (f *FileIndex) Backend() string {
	return BackendFile
}

// Rebuild 写临时文件并 rename，旧快照在 rename 前始终完整可读。
func (f *FileIndex) Rebuild(ctx context.Context, manifest Manifest, chunks []Chunk, embeddings [][]float32) error {
	dim, err := validateRebuild(chunks, embeddings)
	if err != nil {
		return err
	}
	manifest.Chunks = len(chunks)
	manifest.Dimension = dim

	snap := &snapshot{Manifest: manifest, Entries: toEntries(chunks, embeddings)}
	data, err := json.MarshalStable(snap)
	if err != nil {
		return fmt.Errorf("encode index snapshot: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := docutil.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("stat index snapshot: %w", err)
	}
	f.cached, f.modTime, f.size = snap, info.ModTime(), info.Size()

	logger.Debugw("Index snapshot written",
		"path", f.path,
		"generation", manifest.Generation,
		"bytes", len(data),
	)
	return nil
}

// Query 精确检索。
func (f *FileIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return searchExact(snap.Entries, snap.Manifest.Dimension, vector, k)
}

// Exists 判断快照文件是否存在。
func (f *FileIndex) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Manifest returns the manifest of the current snapshot.
func (f *FileIndex) Manifest(ctx context.Context) (*Manifest, error) {
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	m := snap.Manifest
	return &m, nil
}

// Invalidate 丢弃内存缓存，下次访问重新读取文件。
func (f *FileIndex) Invalidate() {
	f.mu.Lock()
	f.cached = nil
	f.mu.Unlock()
}

// Close is a no-op for the file backend.
func (f *FileIndex) Close() error {
	return nil
}

func (f *FileIndex) load(ctx context.Context) (*snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.Invalidate()
			return nil, errors.ErrIndexNotFound
		}
		return nil, fmt.Errorf("stat index snapshot: %w", err)
	}

	f.mu.RLock()
	if f.cached != nil && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		snap := f.cached
		f.mu.RUnlock()
		return snap, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.cached = nil
			return nil, errors.ErrIndexNotFound
		}
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.ErrInvariantViolation.WithCause(fmt.Errorf("decode index snapshot %s: %w", f.path, err))
	}
	if len(snap.Entries) != snap.Manifest.Chunks {
		return nil, errors.ErrInvariantViolation.WithMessagef(
			"index snapshot lists %d chunks but holds %d", snap.Manifest.Chunks, len(snap.Entries))
	}

	f.cached, f.modTime, f.size = &snap, info.ModTime(), int64(len(data))
	logger.Debugw("Index snapshot loaded", "path", f.path, "generation", snap.Manifest.Generation)
	return &snap, nil
}
