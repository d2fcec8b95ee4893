package metrics

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/infra/pool"
)

func TestRecordQuery(t *testing.T) {
	m := New()

	m.RecordQuery(true, nil)
	m.RecordQuery(false, nil)
	m.RecordQuery(false, nil)
	m.RecordQuery(false, assert.AnError)

	s := m.Snapshot()
	assert.Equal(t, uint64(4), s.QueriesTotal)
	assert.Equal(t, uint64(1), s.CacheHits)
	assert.Equal(t, uint64(2), s.CacheMisses)
	assert.Equal(t, uint64(1), s.QueriesErrors)
	assert.InDelta(t, 1.0/3.0, s.CacheHitRate, 1e-9)
}

func TestRecordLLMCall(t *testing.T) {
	m := New()

	m.RecordLLMCall(2*time.Second, false, nil)
	m.RecordLLMCall(time.Second, true, assert.AnError)
	m.RecordLLMCall(time.Second, false, assert.AnError)

	s := m.Snapshot()
	assert.Equal(t, uint64(3), s.LLMCallsTotal)
	assert.Equal(t, uint64(2), s.LLMCallsErrors)
	assert.Equal(t, uint64(1), s.LLMRateLimited)
	assert.InDelta(t, 2.0, s.LLMCallsSeconds, 1e-9)
}

func TestRecordIngestion(t *testing.T) {
	m := New()

	m.RecordIngestion(3, nil)
	m.RecordIngestion(0, assert.AnError)
	m.RecordIngestion(5, nil)

	s := m.Snapshot()
	assert.Equal(t, uint64(3), s.IngestionsTotal)
	assert.Equal(t, uint64(1), s.IngestionsErrors)
	assert.Equal(t, uint64(8), s.ChunksIndexed)
	assert.Equal(t, int64(5), s.CurrentChunks)

	m.SetIndexedChunks(0)
	assert.Equal(t, int64(0), m.Snapshot().CurrentChunks)
}

func TestSetBreakerState(t *testing.T) {
	m := New()

	m.SetBreakerState("open")
	assert.Equal(t, BreakerOpen, m.Snapshot().BreakerState)
	m.SetBreakerState("half-open")
	assert.Equal(t, BreakerHalfOpen, m.Snapshot().BreakerState)
	m.SetBreakerState("closed")
	assert.Equal(t, BreakerClosed, m.Snapshot().BreakerState)
}

func TestWritePrometheus(t *testing.T) {
	m := New()
	m.RecordQuery(false, nil)
	m.RecordRetrieval(1500*time.Millisecond, nil)
	m.RecordEmbeddings(12)

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf, "docqa"))
	out := buf.String()

	assert.Contains(t, out, "# TYPE docqa_queries_total counter\n")
	assert.Contains(t, out, "docqa_queries_total 1\n")
	assert.Contains(t, out, "docqa_embeddings_total 12\n")
	assert.Contains(t, out, "docqa_retrieval_duration_seconds_total 1.500000\n")
	assert.Contains(t, out, "# TYPE docqa_index_chunks gauge\n")
}

type staticPool struct{ stats pool.Stats }

func (p staticPool) Stats() pool.Stats { return p.stats }

func TestWritePrometheus_Pool(t *testing.T) {
	m := New()

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf, "docqa"))
	assert.NotContains(t, buf.String(), "docqa_pool_")
	assert.Nil(t, m.Snapshot().Pool)

	m.SetPool(staticPool{pool.Stats{Capacity: 4, Running: 1, SubmittedTasks: 9, CompletedTasks: 7, FailedTasks: 1, RejectedTasks: 1}})
	buf.Reset()
	require.NoError(t, m.WritePrometheus(&buf, "docqa"))
	out := buf.String()

	assert.Contains(t, out, "# TYPE docqa_pool_capacity gauge\n")
	assert.Contains(t, out, "docqa_pool_capacity 4\n")
	assert.Contains(t, out, "docqa_pool_running_workers 1\n")
	assert.Contains(t, out, "docqa_pool_tasks_submitted_total 9\n")
	assert.Contains(t, out, "docqa_pool_tasks_failed_total 1\n")
	assert.Contains(t, out, "docqa_pool_tasks_rejected_total 1\n")
}

func TestConcurrentRecording(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordQuery(false, nil)
			m.RecordRetrieval(time.Millisecond, nil)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, uint64(50), s.QueriesTotal)
	assert.Equal(t, uint64(50), s.RetrievalTotal)
}
