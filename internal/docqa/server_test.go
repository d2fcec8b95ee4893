package docqa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	corsopts "github.com/kart-io/docqa/pkg/options/cors"
	indexopts "github.com/kart-io/docqa/pkg/options/index"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	poolopts "github.com/kart-io/docqa/pkg/options/pool"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	resilienceopts "github.com/kart-io/docqa/pkg/options/resilience"
	httpopts "github.com/kart-io/docqa/pkg/options/server/http"
	sqliteopts "github.com/kart-io/docqa/pkg/options/sqlite"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = "127.0.0.1:0"
	httpOpts.Mode = "test"
	httpOpts.ShutdownTimeout = time.Second

	indexOpts := indexopts.NewOptions()
	indexOpts.Path = t.TempDir()

	return &Config{
		HTTPOptions:       httpOpts,
		LogOptions:        logopts.NewOptions(),
		CORSOptions:       corsopts.NewOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		ChatOptions:       llmopts.NewChatOptions(),
		RAGOptions:        ragopts.NewOptions(),
		IndexOptions:      indexOpts,
		SQLiteOptions:     sqliteopts.NewOptions(),
		MilvusOptions:     milvusopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		PoolOptions:       poolopts.NewOptions(),
		TracingOptions:    tracingopts.NewOptions(),
		ResilienceOptions: resilienceopts.NewOptions(),
	}
}

func TestNewServer_Routes(t *testing.T) {
	s, err := newTestConfig(t).NewServer(context.Background())
	require.NoError(t, err)
	defer s.close(context.Background())

	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_document":false`)
	assert.Contains(t, w.Body.String(), `"backend":"file"`)
}

func TestNewServer_UnknownBackend(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.IndexOptions.Backend = "faiss"

	_, err := cfg.NewServer(context.Background())
	assert.Error(t, err)
}

func TestNewServer_UnknownProvider(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ChatOptions.Provider = "nope"

	_, err := cfg.NewServer(context.Background())
	assert.Error(t, err)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s, err := newTestConfig(t).NewServer(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
