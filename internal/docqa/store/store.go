package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// Chunk 文档块。Ordinal 从 0 开始连续编号，保持文档顺序。
type Chunk struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

// Hit 检索结果。Distance 为欧氏距离平方，越小越相近。
type Hit struct {
	Chunk
	Distance float32 `json:"distance"`
}

// Manifest 描述当前索引的一代。
type Manifest struct {
	Generation string    `json:"generation"`
	Document   string    `json:"document"`
	Chunks     int       `json:"chunks"`
	Dimension  int       `json:"dimension"`
	BuiltAt    time.Time `json:"built_at"`
}

// VectorIndex 定义向量索引接口。
type VectorIndex interface {
	// Rebuild 用 chunks/embeddings 整体替换索引。
	Rebuild(ctx context.Context, manifest Manifest, chunks []Chunk, embeddings [][]float32) error

	// Query 返回最多 k 个结果，按距离升序、距离相同按 Ordinal 升序。
	// 索引不存在返回 ErrIndexNotFound。
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Exists 判断索引是否存在。
	Exists(ctx context.Context) (bool, error)

	// Manifest 返回当前索引的描述，索引不存在返回 ErrIndexNotFound。
	Manifest(ctx context.Context) (*Manifest, error)

	// Backend 返回后端名称。
	Backend() string

	// Close 释放资源。
	Close() error
}

// entry 内存中的一条索引记录。
type entry struct {
	Ordinal int       `json:"ordinal"`
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
}

// validateRebuild 在写入任何数据之前校验输入，返回向量维度。
func validateRebuild(chunks []Chunk, embeddings [][]float32) (int, error) {
	if len(chunks) != len(embeddings) {
		return 0, errors.ErrInvariantViolation.WithMessagef(
			"chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return 0, errors.ErrInvariantViolation.WithMessage("cannot build an index with no chunks")
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return 0, errors.ErrInvariantViolation.WithMessage("embedding vectors are empty")
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return 0, errors.ErrInvariantViolation.WithMessagef(
				"embedding %d has dimension %d, expected %d", i, len(e), dim)
		}
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			return 0, errors.ErrInvariantViolation.WithMessagef(
				"chunk ordinals must be contiguous from 0, got %d at position %d", c.Ordinal, i)
		}
	}
	return dim, nil
}

func toEntries(chunks []Chunk, embeddings [][]float32) []entry {
	entries := make([]entry, len(chunks))
	for i, c := range chunks {
		entries[i] = entry{Ordinal: c.Ordinal, Text: c.Text, Vector: embeddings[i]}
	}
	return entries
}

// searchExact 暴力检索。
func searchExact(entries []entry, dim int, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if len(vector) != dim {
		return nil, errors.ErrInvariantViolation.WithMessagef(
			"query vector has dimension %d, index has %d", len(vector), dim)
	}

	hits := make([]Hit, len(entries))
	for i, e := range entries {
		hits[i] = Hit{
			Chunk:    Chunk{Ordinal: e.Ordinal, Text: e.Text},
			Distance: textutil.SquaredL2Distance(vector, e.Vector),
		}
	}
	sortHits(hits)

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// sortHits 按 (Distance, Ordinal) 升序排序。
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}

func checkK(k int) error {
	if k < 0 {
		return fmt.Errorf("k must not be negative, got %d", k)
	}
	return nil
}
