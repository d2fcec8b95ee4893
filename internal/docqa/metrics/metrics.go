// Package metrics 提供 docqa 的业务指标收集，以 Prometheus 文本格式导出。
package metrics

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/docqa/pkg/infra/pool"
)

// BreakerState 熔断器状态值。
const (
	BreakerClosed   int32 = 0
	BreakerOpen     int32 = 1
	BreakerHalfOpen int32 = 2
)

// DocQAMetrics 业务指标。所有方法并发安全。
type DocQAMetrics struct {
	queriesTotal  atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	queriesErrors atomic.Uint64

	retrievalTotal  atomic.Uint64
	retrievalErrors atomic.Uint64
	retrievalNanos  atomic.Int64

	llmCallsTotal   atomic.Uint64
	llmCallsErrors  atomic.Uint64
	llmRateLimited  atomic.Uint64
	llmCallsNanos   atomic.Int64
	embeddingsTotal atomic.Uint64

	ingestionsTotal  atomic.Uint64
	ingestionsErrors atomic.Uint64
	chunksIndexed    atomic.Uint64
	currentChunks    atomic.Int64

	breakerState atomic.Int32

	poolMu sync.RWMutex
	pool   PoolSource

	startTime time.Time
}

// PoolSource 提供工作池统计，*pool.Pool 实现该接口。
type PoolSource interface {
	Stats() pool.Stats
}

// New creates an empty metrics set.
func New() *DocQAMetrics {
	return &DocQAMetrics{startTime: time.Now()}
}

// RecordQuery 记录一次问答。
func (m *DocQAMetrics) RecordQuery(cacheHit bool, err error) {
	m.queriesTotal.Add(1)
	if err != nil {
		m.queriesErrors.Add(1)
		return
	}
	if cacheHit {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
}

// RecordRetrieval 记录一次检索。
func (m *DocQAMetrics) RecordRetrieval(d time.Duration, err error) {
	m.retrievalTotal.Add(1)
	if err != nil {
		m.retrievalErrors.Add(1)
		return
	}
	m.retrievalNanos.Add(int64(d))
}

// RecordLLMCall 记录一次生成调用。rateLimited 仅在 err 非空时有意义。
func (m *DocQAMetrics) RecordLLMCall(d time.Duration, rateLimited bool, err error) {
	m.llmCallsTotal.Add(1)
	if err != nil {
		m.llmCallsErrors.Add(1)
		if rateLimited {
			m.llmRateLimited.Add(1)
		}
		return
	}
	m.llmCallsNanos.Add(int64(d))
}

// RecordEmbeddings 记录嵌入的文本数。
func (m *DocQAMetrics) RecordEmbeddings(n int) {
	if n > 0 {
		m.embeddingsTotal.Add(uint64(n))
	}
}

// RecordIngestion 记录一次文档入库。成功时 chunks 为新索引的块数。
func (m *DocQAMetrics) RecordIngestion(chunks int, err error) {
	m.ingestionsTotal.Add(1)
	if err != nil {
		m.ingestionsErrors.Add(1)
		return
	}
	m.chunksIndexed.Add(uint64(chunks))
	m.currentChunks.Store(int64(chunks))
}

// SetIndexedChunks 设置当前索引的块数，索引被删除时为 0。
func (m *DocQAMetrics) SetIndexedChunks(n int) {
	m.currentChunks.Store(int64(n))
}

// SetBreakerState 根据 gobreaker 状态名设置熔断器状态。
func (m *DocQAMetrics) SetBreakerState(state string) {
	switch state {
	case "open":
		m.breakerState.Store(BreakerOpen)
	case "half-open":
		m.breakerState.Store(BreakerHalfOpen)
	default:
		m.breakerState.Store(BreakerClosed)
	}
}

// SetPool 关联嵌入工作池，其统计随快照一并导出。
func (m *DocQAMetrics) SetPool(p PoolSource) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	m.pool = p
}

// Snapshot 指标快照。
type Snapshot struct {
	QueriesTotal     uint64  `json:"queries_total"`
	CacheHits        uint64  `json:"cache_hits"`
	CacheMisses      uint64  `json:"cache_misses"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	QueriesErrors    uint64  `json:"queries_errors"`
	RetrievalTotal   uint64  `json:"retrieval_total"`
	RetrievalErrors  uint64  `json:"retrieval_errors"`
	RetrievalSeconds float64 `json:"retrieval_seconds"`
	LLMCallsTotal    uint64  `json:"llm_calls_total"`
	LLMCallsErrors   uint64  `json:"llm_calls_errors"`
	LLMRateLimited   uint64  `json:"llm_rate_limited"`
	LLMCallsSeconds  float64 `json:"llm_calls_seconds"`
	EmbeddingsTotal  uint64  `json:"embeddings_total"`
	IngestionsTotal  uint64  `json:"ingestions_total"`
	IngestionsErrors uint64  `json:"ingestions_errors"`
	ChunksIndexed    uint64  `json:"chunks_indexed"`
	CurrentChunks    int64   `json:"current_chunks"`
	BreakerState     int32   `json:"breaker_state"`
	UptimeSeconds    float64 `json:"uptime_seconds"`

	// 未关联工作池时为 nil
	Pool *pool.Stats `json:"pool,omitempty"`
}

// Snapshot returns the current values.
func (m *DocQAMetrics) Snapshot() Snapshot {
	s := Snapshot{
		QueriesTotal:     m.queriesTotal.Load(),
		CacheHits:        m.cacheHits.Load(),
		CacheMisses:      m.cacheMisses.Load(),
		QueriesErrors:    m.queriesErrors.Load(),
		RetrievalTotal:   m.retrievalTotal.Load(),
		RetrievalErrors:  m.retrievalErrors.Load(),
		RetrievalSeconds: time.Duration(m.retrievalNanos.Load()).Seconds(),
		LLMCallsTotal:    m.llmCallsTotal.Load(),
		LLMCallsErrors:   m.llmCallsErrors.Load(),
		LLMRateLimited:   m.llmRateLimited.Load(),
		LLMCallsSeconds:  time.Duration(m.llmCallsNanos.Load()).Seconds(),
		EmbeddingsTotal:  m.embeddingsTotal.Load(),
		IngestionsTotal:  m.ingestionsTotal.Load(),
		IngestionsErrors: m.ingestionsErrors.Load(),
		ChunksIndexed:    m.chunksIndexed.Load(),
		CurrentChunks:    m.currentChunks.Load(),
		BreakerState:     m.breakerState.Load(),
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(total)
	}

	m.poolMu.RLock()
	src := m.pool
	m.poolMu.RUnlock()
	if src != nil {
		ps := src.Stats()
		s.Pool = &ps
	}
	return s
}

type family struct {
	name  string
	help  string
	typ   string
	value float64
}

// WritePrometheus 以 Prometheus 文本格式写出，prefix 形如 "docqa"。
func (m *DocQAMetrics) WritePrometheus(w io.Writer, prefix string) error {
	s := m.Snapshot()
	families := []family{
		{"queries_total", "Total number of questions answered.", "counter", float64(s.QueriesTotal)},
		{"queries_cache_hits_total", "Questions answered from the cache.", "counter", float64(s.CacheHits)},
		{"queries_cache_misses_total", "Questions answered by the pipeline.", "counter", float64(s.CacheMisses)},
		{"queries_errors_total", "Questions that failed.", "counter", float64(s.QueriesErrors)},
		{"cache_hit_rate", "Cache hit rate (0-1).", "gauge", s.CacheHitRate},
		{"retrieval_total", "Total number of retrievals.", "counter", float64(s.RetrievalTotal)},
		{"retrieval_errors_total", "Retrievals that failed.", "counter", float64(s.RetrievalErrors)},
		{"retrieval_duration_seconds_total", "Time spent in successful retrievals.", "counter", s.RetrievalSeconds},
		{"llm_calls_total", "Total number of generation calls.", "counter", float64(s.LLMCallsTotal)},
		{"llm_calls_errors_total", "Generation calls that failed.", "counter", float64(s.LLMCallsErrors)},
		{"llm_calls_rate_limited_total", "Generation calls rejected for quota.", "counter", float64(s.LLMRateLimited)},
		{"llm_calls_duration_seconds_total", "Time spent in successful generation calls.", "counter", s.LLMCallsSeconds},
		{"embeddings_total", "Texts sent to the embedding provider.", "counter", float64(s.EmbeddingsTotal)},
		{"ingestions_total", "Total number of document ingestions.", "counter", float64(s.IngestionsTotal)},
		{"ingestions_errors_total", "Ingestions that failed.", "counter", float64(s.IngestionsErrors)},
		{"chunks_indexed_total", "Chunks written across all ingestions.", "counter", float64(s.ChunksIndexed)},
		{"index_chunks", "Chunks in the current index.", "gauge", float64(s.CurrentChunks)},
		{"circuit_breaker_state", "Provider circuit breaker state (0=closed, 1=open, 2=half-open).", "gauge", float64(s.BreakerState)},
		{"uptime_seconds", "Service uptime in seconds.", "gauge", s.UptimeSeconds},
	}
	if ps := s.Pool; ps != nil {
		families = append(families,
			family{"pool_capacity", "Embedding worker pool capacity.", "gauge", float64(ps.Capacity)},
			family{"pool_running_workers", "Embedding workers currently running.", "gauge", float64(ps.Running)},
			family{"pool_tasks_submitted_total", "Tasks submitted to the embedding pool.", "counter", float64(ps.SubmittedTasks)},
			family{"pool_tasks_completed_total", "Tasks completed by the embedding pool.", "counter", float64(ps.CompletedTasks)},
			family{"pool_tasks_failed_total", "Embedding pool tasks that returned an error or panicked.", "counter", float64(ps.FailedTasks)},
			family{"pool_tasks_rejected_total", "Tasks the embedding pool refused.", "counter", float64(ps.RejectedTasks)},
			family{"pool_panics_recovered_total", "Panics recovered in embedding pool workers.", "counter", float64(ps.PanicRecovered)},
		)
	}

	var sb strings.Builder
	for _, f := range families {
		name := f.name
		if prefix != "" {
			name = prefix + "_" + name
		}
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, f.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, f.typ)
		fmt.Fprintf(&sb, "%s %s\n", name, formatValue(f.value))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.6f", v)
}
