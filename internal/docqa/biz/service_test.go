package biz

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
)

const skyDoc = "The sky is blue."

func TestService_AskBeforeIngest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Ask(ctx, "What color is the sky?")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
	assert.Zero(t, env.chat.calls())

	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.HasDocument)
	assert.Equal(t, StateEmpty, st.State)
	assert.Equal(t, "file", st.Backend)
}

func TestService_EndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, "sky.txt", res.Document)
	assert.True(t, id.IsValidULID(res.Generation))

	answer, err := env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "Blue.", answer.Answer)
	assert.Equal(t, []string{skyDoc}, answer.Sources)

	prompt := env.chat.lastPrompt()
	assert.Contains(t, prompt, "Context:\n"+skyDoc+"\n\nQuestion: What color is the sky?")

	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.HasDocument)
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, "sky.txt", st.Document)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, len(keywords), st.Dimension)
	assert.Equal(t, res.Generation, st.Generation)
	require.NotNil(t, st.BuiltAt)

	snap := env.svc.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.IngestionsTotal)
	assert.Equal(t, uint64(1), snap.QueriesTotal)
	assert.Equal(t, uint64(1), snap.LLMCallsTotal)
	assert.Equal(t, int64(1), snap.CurrentChunks)
}

func TestService_BlankQuestion(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := env.svc.Ask(ctx, q)
		assert.True(t, errors.Is(err, errors.ErrEmptyInput), "question %q", q)
	}
	assert.Zero(t, env.chat.calls())
}

func TestService_BlankDocumentKeepsIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	_, err = env.svc.Ingest(ctx, "blank.txt", []byte("   \n\n  "))
	assert.True(t, errors.Is(err, errors.ErrEmptyInput))

	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Generation, st.Generation)
	assert.Equal(t, "sky.txt", st.Document)

	snap := env.svc.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.IngestionsTotal)
	assert.Equal(t, uint64(1), snap.IngestionsErrors)
}

func TestService_EmptyDocumentOnFreshIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, "blank.txt", []byte(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyInput))

	_, err = env.svc.Ask(ctx, "anything?")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
}

func TestService_ReingestIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)
	a1, err := env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)

	second, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)
	a2, err := env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Equal(t, a1.Sources, a2.Sources)
}

func TestService_ReingestReplacesDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)
	_, err = env.svc.Ingest(ctx, "cat.txt", []byte("The cat sleeps all day."))
	require.NoError(t, err)

	answer, err := env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, []string{"The cat sleeps all day."}, answer.Sources)
}

func TestService_RetrievalOrderingAndTopK(t *testing.T) {
	env := newTestEnv(t, &ServiceConfig{ChunkSize: 20, ChunkOverlap: 0, TopK: 2, EmbedBatchSize: 32})
	ctx := context.Background()

	doc := "Cats purr softly.\n\nDogs bark loudly.\n\nBirds sing early."
	res, err := env.svc.Ingest(ctx, "pets.txt", []byte(doc))
	require.NoError(t, err)
	require.Equal(t, 3, res.Chunks)

	answer, err := env.svc.Ask(ctx, "Why do dogs bark?")
	require.NoError(t, err)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "Dogs bark loudly.\n\n", answer.Sources[0])
	// 其余两块距离相同，按序号取前一个
	assert.Equal(t, "Cats purr softly.\n\n", answer.Sources[1])
}

func TestService_EmbedBatchesWithPool(t *testing.T) {
	p, err := pool.NewPool("embed-test", &pool.Config{Capacity: 3, ExpiryDuration: time.Second})
	require.NoError(t, err)
	defer p.Release()

	env := newTestEnv(t, &ServiceConfig{ChunkSize: 1000, ChunkOverlap: 200, TopK: 4, EmbedBatchSize: 2}, WithPool(p))

	texts := []string{"cat", "dog", "bird", "sky", "cat dog", "none", "sky bird"}
	out, err := env.svc.embedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, text := range texts {
		assert.Equal(t, keywordVector(text), out[i], "text %q", text)
	}
	assert.Equal(t, 4, env.embedder.batchCount())

	snap := env.svc.Metrics().Snapshot()
	assert.Equal(t, uint64(len(texts)), snap.EmbeddingsTotal)
	require.NotNil(t, snap.Pool)
	assert.Equal(t, 3, snap.Pool.Capacity)
	assert.Equal(t, int64(4), snap.Pool.SubmittedTasks)
	assert.Equal(t, int64(0), snap.Pool.FailedTasks)
}

func TestService_EmbeddingFailureKeepsIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	env.embedder.setErr(llm.WrapError("fake", "embed", http.StatusTooManyRequests, stderrors.New("quota")))
	_, err = env.svc.Ingest(ctx, "cat.txt", []byte("The cat sleeps."))
	assert.True(t, errors.Is(err, errors.ErrProviderRateLimited))

	env.embedder.setErr(nil)
	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Generation, st.Generation)
}

func TestService_AskProviderErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	env.chat.err = llm.WrapError("fake", "generate", http.StatusTooManyRequests, stderrors.New("429"))
	_, err = env.svc.Ask(ctx, "What color is the sky?")
	assert.True(t, errors.Is(err, errors.ErrProviderRateLimited))

	env.chat.err = llm.WrapError("fake", "generate", http.StatusBadGateway, stderrors.New("bad gateway"))
	_, err = env.svc.Ask(ctx, "What color is the sky?")
	assert.True(t, errors.Is(err, errors.ErrProviderFailed))

	env.embedder.setErr(stderrors.New("embedder down"))
	_, err = env.svc.Ask(ctx, "What color is the sky?")
	assert.True(t, errors.Is(err, errors.ErrProviderFailed))

	snap := env.svc.Metrics().Snapshot()
	assert.Equal(t, uint64(3), snap.QueriesErrors)
	assert.Equal(t, uint64(1), snap.LLMRateLimited)
	assert.Equal(t, uint64(1), snap.RetrievalErrors)
}

func TestService_PDFOnlyRejectsText(t *testing.T) {
	env := newTestEnv(t, &ServiceConfig{PDFOnly: true})

	_, err := env.svc.Ingest(context.Background(), "notes.txt", []byte(skyDoc))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDocument))
}

func TestService_AnswerCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := NewQueryCache(client, &QueryCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "docqa:answer:"})
	t.Cleanup(func() { _ = cache.Close() })

	env := newTestEnv(t, nil, WithCache(cache))
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	a1, err := env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)
	a2, err := env.svc.Ask(ctx, "What  color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, 1, env.chat.calls())

	snap := env.svc.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)

	// 重建后缓存被清空
	_, err = env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	_, err = env.svc.Ask(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, 2, env.chat.calls())
}

func TestService_HandleIndexRemoved(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, "sky.txt", []byte(skyDoc))
	require.NoError(t, err)

	require.NoError(t, os.Remove(env.index.Path()))
	env.svc.HandleIndexRemoved(env.index.Path())

	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.HasDocument)
	assert.Equal(t, int64(0), env.svc.Metrics().Snapshot().CurrentChunks)

	_, err = env.svc.Ask(ctx, "What color is the sky?")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
}

func TestNewDocQAService_Validation(t *testing.T) {
	_, err := NewDocQAService(nil, &fakeEmbedder{}, &fakeChat{}, nil)
	assert.Error(t, err)

	env := newTestEnv(t, nil)
	_, err = NewDocQAService(env.index, &fakeEmbedder{}, &fakeChat{}, &ServiceConfig{ChunkSize: 10, ChunkOverlap: 10})
	assert.Error(t, err)
}
