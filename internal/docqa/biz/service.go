package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
)

// Service 定义 docqa 对外的三个操作。
type Service interface {
	// Ingest 提取、分块、嵌入并整体替换索引。
	Ingest(ctx context.Context, filename string, data []byte) (*IngestResult, error)
	// Ask 基于当前索引回答问题。
	Ask(ctx context.Context, question string) (*Answer, error)
	// Status 返回索引状态。
	Status(ctx context.Context) (*Status, error)
}

// IngestResult 入库结果。
type IngestResult struct {
	Document   string `json:"document"`
	Chunks     int    `json:"chunks"`
	Generation string `json:"generation"`
}

// Answer 问答结果。Sources 为实际检索到的块文本，按相似度排序。
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Status 索引状态。
type Status struct {
	HasDocument bool       `json:"has_document"`
	State       IndexState `json:"state"`
	Backend     string     `json:"backend"`
	Document    string     `json:"document,omitempty"`
	Chunks      int        `json:"chunks,omitempty"`
	Dimension   int        `json:"dimension,omitempty"`
	Generation  string     `json:"generation,omitempty"`
	BuiltAt     *time.Time `json:"built_at,omitempty"`
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	EmbedBatchSize int
	PromptTemplate string
	PDFOnly        bool
}

// ServiceOption 可选依赖。
type ServiceOption func(*DocQAService)

// WithCache 启用答案缓存。
func WithCache(c *QueryCache) ServiceOption {
	return func(s *DocQAService) { s.cache = c }
}

// WithPool 使用工作池并发执行嵌入批次。
func WithPool(p *pool.Pool) ServiceOption {
	return func(s *DocQAService) { s.pool = p }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.DocQAMetrics) ServiceOption {
	return func(s *DocQAService) { s.metrics = m }
}

// WithExtractor 替换文本提取器。
func WithExtractor(e docutil.TextExtractor) ServiceOption {
	return func(s *DocQAService) { s.extractor = e }
}

// DocQAService 组合提取、分块、嵌入、索引、检索与生成。
type DocQAService struct {
	extractor docutil.TextExtractor
	splitter  *textutil.Splitter
	embedder  llm.EmbeddingProvider
	index     store.VectorIndex
	lifecycle *Lifecycle
	retriever *Retriever
	generator *Generator
	cache     *QueryCache
	pool      *pool.Pool
	metrics   *metrics.DocQAMetrics

	topK      int
	batchSize int
}

var _ Service = (*DocQAService)(nil)

// NewDocQAService 创建服务实例。供应商由调用方显式构造并传入。
func NewDocQAService(
	index store.VectorIndex,
	embedder llm.EmbeddingProvider,
	chat llm.ChatProvider,
	cfg *ServiceConfig,
	opts ...ServiceOption,
) (*DocQAService, error) {
	if index == nil || embedder == nil || chat == nil {
		return nil, fmt.Errorf("index, embedding provider and chat provider are required")
	}
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size = 1000
		if overlap == 0 {
			overlap = 200
		}
	}
	splitter := textutil.NewSplitter(size, overlap)
	if err := splitter.Validate(); err != nil {
		return nil, err
	}

	s := &DocQAService{
		extractor: docutil.NewExtractor(cfg.PDFOnly),
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		lifecycle: NewLifecycle(index),
		retriever: NewRetriever(index, embedder),
		generator: NewGenerator(chat, cfg.PromptTemplate),
		metrics:   metrics.New(),
		topK:      cfg.TopK,
		batchSize: cfg.EmbedBatchSize,
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	if s.batchSize <= 0 {
		s.batchSize = 32
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool != nil {
		s.metrics.SetPool(s.pool)
	}
	return s, nil
}

// Metrics returns the metrics collector.
func (s *DocQAService) Metrics() *metrics.DocQAMetrics {
	return s.metrics
}

// Lifecycle returns the index lifecycle manager.
func (s *DocQAService) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Ingest 提取文本、分块、嵌入并整体替换索引。
// 任一步失败时旧索引不变。
func (s *DocQAService) Ingest(ctx context.Context, filename string, data []byte) (result *IngestResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.ingest", tracing.String(tracing.AttrDocument, filename))
	defer func() {
		tracing.End(span, err)
		if err != nil {
			s.metrics.RecordIngestion(0, err)
			logger.Warnw("Ingestion failed", "document", filename, "error", err)
		}
	}()

	text, err := s.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	texts, err := s.splitter.Split(text)
	if err != nil {
		return nil, err
	}

	embeddings, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunks := make([]store.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = store.Chunk{Ordinal: i, Text: t}
	}
	manifest := store.Manifest{
		Generation: id.NewULID(),
		Document:   filename,
		BuiltAt:    time.Now().UTC(),
	}
	span.SetAttributes(
		tracing.Int(tracing.AttrChunks, len(chunks)),
		tracing.String(tracing.AttrGeneration, manifest.Generation),
	)

	err = s.lifecycle.Rebuild(ctx, func(ctx context.Context, index store.VectorIndex) error {
		return index.Rebuild(ctx, manifest, chunks, embeddings)
	})
	if err != nil {
		return nil, err
	}

	if n, cerr := s.cache.Clear(ctx); cerr != nil {
		logger.Warnw("Failed to clear answer cache", "error", cerr)
	} else if n > 0 {
		logger.Debugw("Answer cache cleared", "keys", n)
	}

	s.metrics.RecordIngestion(len(chunks), nil)
	logger.Infow("Document ingested",
		"document", filename,
		"chunks", len(chunks),
		"generation", manifest.Generation,
		"backend", s.index.Backend(),
	)

	return &IngestResult{
		Document:   filename,
		Chunks:     len(chunks),
		Generation: manifest.Generation,
	}, nil
}

// embedAll 分批嵌入，结果顺序与 texts 一致。
func (s *DocQAService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	tasks := make([]func(context.Context) error, 0, (len(texts)+s.batchSize-1)/s.batchSize)
	for start := 0; start < len(texts); start += s.batchSize {
		start, end := start, min(start+s.batchSize, len(texts))
		tasks = append(tasks, func(ctx context.Context) error {
			vectors, err := s.embedder.Embed(ctx, texts[start:end])
			if err != nil {
				return mapProviderError(err)
			}
			if len(vectors) != end-start {
				return errors.ErrInvariantViolation.WithMessagef(
					"%s returned %d embeddings for %d chunks", s.embedder.Name(), len(vectors), end-start)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	var err error
	if s.pool != nil {
		err = s.pool.RunAll(ctx, tasks)
	} else {
		for _, task := range tasks {
			if err = task(ctx); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEmbeddings(len(texts))
	return out, nil
}

// Ask 回答问题。问题为空返回 ErrEmptyInput，尚无索引返回 ErrIndexNotFound。
func (s *DocQAService) Ask(ctx context.Context, question string) (answer *Answer, err error) {
	cacheHit := false
	ctx, span := tracing.StartSpan(ctx, "docqa.ask")
	defer func() {
		span.SetAttributes(tracing.Bool(tracing.AttrCacheHit, cacheHit))
		tracing.End(span, err)
		s.metrics.RecordQuery(cacheHit, err)
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrEmptyInput.WithMessage("Question must not be empty")
	}

	manifest, err := s.index.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.String(tracing.AttrGeneration, manifest.Generation))

	if cached, cerr := s.cache.Get(ctx, manifest.Generation, question); cerr != nil {
		logger.Warnw("Answer cache read failed", "error", cerr)
	} else if cached != nil {
		cacheHit = true
		return cached, nil
	}

	start := time.Now()
	sources, err := s.retriever.Retrieve(ctx, question, s.topK)
	s.metrics.RecordRetrieval(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	text, err := s.generator.Synthesize(ctx, question, sources)
	s.metrics.RecordLLMCall(time.Since(start), errors.Is(err, errors.ErrProviderRateLimited), err)
	if state := s.generator.BreakerState(); state != "" {
		s.metrics.SetBreakerState(state)
	}
	if err != nil {
		return nil, err
	}

	answer = &Answer{Answer: text, Sources: sources}
	if cerr := s.cache.Set(ctx, manifest.Generation, question, answer); cerr != nil {
		logger.Warnw("Answer cache write failed", "error", cerr)
	}
	return answer, nil
}

// Status 返回索引状态。
func (s *DocQAService) Status(ctx context.Context) (*Status, error) {
	st := &Status{Backend: s.index.Backend(), State: StateEmpty}
	if !s.lifecycle.HasIndex(ctx) {
		return st, nil
	}

	m, err := s.index.Manifest(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrIndexNotFound) {
			return st, nil
		}
		return nil, err
	}

	builtAt := m.BuiltAt
	st.HasDocument = true
	st.State = StateReady
	st.Document = m.Document
	st.Chunks = m.Chunks
	st.Dimension = m.Dimension
	st.Generation = m.Generation
	st.BuiltAt = &builtAt
	return st, nil
}

// HandleIndexRemoved 处理索引被外部删除：清理缓存并重置块数指标。
func (s *DocQAService) HandleIndexRemoved(path string) {
	logger.Warnw("Index removed, service is back to the empty state", "path", path)
	s.metrics.SetIndexedChunks(0)
	if _, err := s.cache.Clear(context.Background()); err != nil {
		logger.Warnw("Failed to clear answer cache", "error", err)
	}
}
