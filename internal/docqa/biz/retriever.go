package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DefaultTopK 默认检索数量。
const DefaultTopK = 4

// Retriever 负责问题嵌入与向量检索，只读。
type Retriever struct {
	index    store.VectorIndex
	embedder llm.EmbeddingProvider
}

// NewRetriever 创建检索器实例。
func NewRetriever(index store.VectorIndex, embedder llm.EmbeddingProvider) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// Retrieve 返回与问题最相近的最多 k 个块文本，最相近的在前。
// 索引不存在时返回 ErrIndexNotFound。
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]string, error) {
	hits, err := r.RetrieveHits(ctx, question, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// RetrieveHits 与 Retrieve 相同，但保留距离与序号。
func (r *Retriever) RetrieveHits(ctx context.Context, question string, k int) (hits []store.Hit, err error) {
	if k <= 0 {
		k = DefaultTopK
	}

	ctx, span := tracing.StartSpan(ctx, "docqa.retrieve",
		tracing.Int(tracing.AttrTopK, k),
		tracing.String(tracing.AttrProvider, r.embedder.Name()),
	)
	defer func() { tracing.End(span, err) }()

	vector, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, mapProviderError(err)
	}
	if len(vector) == 0 {
		return nil, errors.ErrProviderFailed.WithCause(fmt.Errorf("%s returned an empty question embedding", r.embedder.Name()))
	}

	hits, err = r.index.Query(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	logger.Debugw("Retrieved chunks", "top_k", k, "hits", len(hits))
	return hits, nil
}
