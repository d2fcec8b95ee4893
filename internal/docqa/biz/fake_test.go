package biz

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// keywords 假嵌入的维度，每个维度表示文本是否包含该词。
var keywords = []string{"cat", "dog", "bird", "sky"}

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(keywords))
	for i, k := range keywords {
		if strings.Contains(lower, k) {
			v[i] = 1
		}
	}
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return keywordVector(text), nil
}

func (f *fakeEmbedder) Name() string { return "fake-embed" }

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeChat struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeChat) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeChat) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type testEnv struct {
	svc      *DocQAService
	index    *store.FileIndex
	embedder *fakeEmbedder
	chat     *fakeChat
}

func newTestEnv(t *testing.T, cfg *ServiceConfig, opts ...ServiceOption) *testEnv {
	t.Helper()

	index, err := store.NewFileIndex(t.TempDir())
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	chat := &fakeChat{answer: "Blue."}
	if cfg == nil {
		cfg = &ServiceConfig{ChunkSize: 1000, ChunkOverlap: 200, TopK: 4, EmbedBatchSize: 32}
	}

	svc, err := NewDocQAService(index, embedder, chat, cfg, opts...)
	require.NoError(t, err)

	return &testEnv{svc: svc, index: index, embedder: embedder, chat: chat}
}
