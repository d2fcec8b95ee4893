// Package docqa assembles the document question answering service.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/infra/app"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/gemini"
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/resilience"
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

// Name is the name of the application.
const Name = "docqa"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions       *httpopts.Options
	LogOptions        *logopts.Options
	EmbeddingOptions  *llmopts.ProviderOptions
	ChatOptions       *llmopts.ProviderOptions
	RAGOptions        *ragopts.Options
	IndexOptions      *indexopts.Options
	SQLiteOptions     *sqliteopts.Options
	MilvusOptions     *milvusopts.Options
	CacheOptions      *cacheopts.Options
	PoolOptions       *poolopts.Options
	TracingOptions    *tracingopts.Options
	ResilienceOptions *resilienceopts.Options
	CORSOptions       *corsopts.Options
}

// Server represents the docqa server.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	closers         []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (s *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting docqa service...", "version", app.GetVersion())

	s = &Server{shutdownTimeout: cfg.HTTPOptions.ShutdownTimeout}
	defer func() {
		if err != nil {
			s.close(context.Background())
		}
	}()

	// 2. 初始化 tracing
	if cfg.TracingOptions.ServiceName == "" {
		cfg.TracingOptions.ServiceName = Name
	}
	if cfg.TracingOptions.ServiceVersion == "" {
		cfg.TracingOptions.ServiceVersion = app.GetVersion()
	}
	tp, err := tracing.NewProvider(cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.addCloser("tracing", tp.Shutdown)
	logger.Infow("Tracing initialized", "enabled", tp.Enabled())

	// 3. 初始化向量索引
	index, err := store.New(ctx, cfg.IndexOptions, cfg.SQLiteOptions, cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	s.addCloser("index", func(context.Context) error { return index.Close() })
	logger.Infow("Vector index initialized", "backend", index.Backend())

	// 4. 初始化 Redis 缓存
	queryCache := cfg.newQueryCache(ctx)
	if queryCache != nil {
		s.addCloser("cache", func(context.Context) error { return queryCache.Close() })
	}

	// 5. 初始化 LLM 供应商
	policy := cfg.ResilienceOptions.ToPolicy()
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.ProviderName(), cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"strategy", cfg.EmbeddingOptions.Provider,
		"provider", embedProvider.Name(),
		"model", cfg.EmbeddingOptions.Model,
	)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.ProviderName(), cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"strategy", cfg.ChatOptions.Provider,
		"provider", chatProvider.Name(),
		"model", cfg.ChatOptions.Model,
	)

	// 6. 初始化嵌入并发池
	embedPool, err := pool.NewPool("docqa-embed", cfg.PoolOptions.ToConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}
	s.addCloser("pool", func(ctx context.Context) error {
		// 等待进行中的嵌入批次，最长到关闭期限
		if deadline, ok := ctx.Deadline(); ok {
			return embedPool.ReleaseTimeout(time.Until(deadline))
		}
		embedPool.Release()
		return nil
	})

	// 7. 初始化 Biz 层
	svc, err := biz.NewDocQAService(
		index,
		resilience.NewResilientEmbeddingProvider(embedProvider, policy),
		resilience.NewResilientChatProvider(chatProvider, policy),
		&biz.ServiceConfig{
			ChunkSize:      cfg.RAGOptions.ChunkSize,
			ChunkOverlap:   cfg.RAGOptions.ChunkOverlap,
			TopK:           cfg.RAGOptions.TopK,
			EmbedBatchSize: cfg.RAGOptions.EmbedBatchSize,
			PromptTemplate: cfg.RAGOptions.PromptTemplate,
			PDFOnly:        cfg.RAGOptions.PDFOnly,
		},
		biz.WithCache(queryCache),
		biz.WithPool(embedPool),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize docqa service: %w", err)
	}
	if st, err := svc.Status(ctx); err == nil {
		svc.Metrics().SetIndexedChunks(st.Chunks)
		logger.Infow("Docqa service initialized", "state", st.State, "document", st.Document, "chunks", st.Chunks)
	}

	// 8. 监听文件快照
	if fileIndex, ok := index.(*store.FileIndex); ok && cfg.IndexOptions.Watch {
		w, err := store.NewWatcher(fileIndex, svc.HandleIndexRemoved)
		if err != nil {
			logger.Warnw("Index watcher disabled", "path", fileIndex.Path(), "error", err)
		} else {
			s.addCloser("watcher", func(context.Context) error { return w.Stop() })
		}
	}

	// 9. 初始化 HTTP 服务器
	engine := router.New(handler.NewDocQAHandler(svc, svc.Metrics()), router.Config{
		Mode:           cfg.HTTPOptions.Mode,
		RequestTimeout: cfg.HTTPOptions.RequestTimeout,
		MaxUploadSize:  cfg.RAGOptions.MaxUploadSize,
		Tracing:        tp.Enabled(),
		CORS:           cfg.CORSOptions,
	})
	s.httpServer = &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Docqa service is ready")
	return s, nil
}

// newQueryCache 连接 Redis，连接失败时降级为无缓存。
func (cfg *Config) newQueryCache(ctx context.Context) *biz.QueryCache {
	if !cfg.CacheOptions.Enabled {
		logger.Info("Cache is disabled")
		return nil
	}
	if cfg.CacheOptions.Redis == nil {
		logger.Warn("Cache is enabled but no Redis configuration provided")
		return nil
	}

	client := cfg.CacheOptions.Redis.NewClient()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnw("Failed to connect to redis, cache will be disabled", "addr", cfg.CacheOptions.Redis.Addr(), "error", err)
		_ = client.Close()
		return nil
	}

	logger.Infow("Redis cache initialized",
		"addr", cfg.CacheOptions.Redis.Addr(),
		"ttl", cfg.CacheOptions.TTL,
	)
	return newQueryCache(client, cfg.CacheOptions)
}

func newQueryCache(client *goredis.Client, opts *cacheopts.Options) *biz.QueryCache {
	return biz.NewQueryCache(client, &biz.QueryCacheConfig{
		Enabled:   true,
		TTL:       opts.TTL,
		KeyPrefix: opts.KeyPrefix,
	})
}

func (s *Server) addCloser(name string, fn func(ctx context.Context) error) {
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// close 逆序释放资源。
func (s *Server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.fn(ctx); err != nil {
			logger.Warnw("Failed to close resource", "resource", c.name, "error", err)
		}
	}
	s.closers = nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down docqa service...")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Errorw("HTTP server failed", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP server shutdown failed", "error", err)
	}
	s.close(shutdownCtx)

	logger.Info("Docqa service stopped")
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.ProviderName(), cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.ProviderName(), cfg.ChatOptions.Model)
	fmt.Printf("  Index: %s\n", cfg.IndexOptions.Backend)
}
