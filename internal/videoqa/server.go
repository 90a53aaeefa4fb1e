// Package videoqa provides the video question answering server implementation.
package videoqa

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/videoqa/internal/videoqa/biz"
	"github.com/kart-io/videoqa/internal/videoqa/handler"
	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/router"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	"github.com/kart-io/videoqa/pkg/cache"
	"github.com/kart-io/videoqa/pkg/component/milvus"
	"github.com/kart-io/videoqa/pkg/component/postgres"
	"github.com/kart-io/videoqa/pkg/component/redis"
	"github.com/kart-io/videoqa/pkg/infra/app"
	"github.com/kart-io/videoqa/pkg/infra/middleware"
	"github.com/kart-io/videoqa/pkg/infra/pool"
	"github.com/kart-io/videoqa/pkg/infra/server"
	httpserver "github.com/kart-io/videoqa/pkg/infra/server/http"
	"github.com/kart-io/videoqa/pkg/infra/tracing"
	"github.com/kart-io/videoqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/videoqa/pkg/llm/huggingface"
	_ "github.com/kart-io/videoqa/pkg/llm/ollama"
	_ "github.com/kart-io/videoqa/pkg/llm/openai"
	"github.com/kart-io/videoqa/pkg/llm/resilience"
	authopts "github.com/kart-io/videoqa/pkg/options/auth"
	cacheopts "github.com/kart-io/videoqa/pkg/options/cache"
	llmopts "github.com/kart-io/videoqa/pkg/options/llm"
	logopts "github.com/kart-io/videoqa/pkg/options/logger"
	milvusopts "github.com/kart-io/videoqa/pkg/options/milvus"
	poolopts "github.com/kart-io/videoqa/pkg/options/pool"
	pgopts "github.com/kart-io/videoqa/pkg/options/postgres"
	ratelimitopts "github.com/kart-io/videoqa/pkg/options/ratelimit"
	redisopts "github.com/kart-io/videoqa/pkg/options/redis"
	httpopts "github.com/kart-io/videoqa/pkg/options/server/http"
	tracingopts "github.com/kart-io/videoqa/pkg/options/tracing"
	videoqaopts "github.com/kart-io/videoqa/pkg/options/videoqa"
	youtubeopts "github.com/kart-io/videoqa/pkg/options/youtube"
	"github.com/kart-io/videoqa/pkg/utils/validator"
	"github.com/kart-io/videoqa/pkg/youtube"
)

// Name is the name of the application.
const Name = "videoqa"

// Pool names registered with the pool manager.
const (
	poolEmbedding  = "embedding"
	poolBackground = "background"
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	VideoQAOptions   *videoqaopts.Options
	CacheOptions     *cacheopts.Options
	RedisOptions     *redisopts.Options
	MilvusOptions    *milvusopts.Options
	PostgresOptions  *pgopts.Options
	PoolOptions      *poolopts.Options
	AuthOptions      *authopts.Options
	RateLimitOptions *ratelimitopts.Options
	YouTubeOptions   *youtubeopts.Options
	TracingOptions   *tracingopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the video QA server.
type Server struct {
	srv *server.Manager
}

// NewServer initializes and returns a new Server instance. Resources
// acquired before a failing step are released before returning.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.WithInitialFields(map[string]interface{}{
		"service.name":    Name,
		"service.version": app.GetVersion(),
	})
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting video QA service...")

	serverManager := server.NewManager(cfg.ShutdownTimeout)
	defer func() {
		if err != nil {
			_ = serverManager.Stop(context.Background())
		}
	}()

	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	serverManager.AddCloser("tracing", tp.Shutdown)

	// 3. 初始化 Redis 客户端（字幕二级缓存与向量缓存）
	var redisClient goredis.UniversalClient
	if cfg.CacheOptions.Redis || cfg.CacheOptions.EmbeddingCache {
		rc, rerr := redis.NewWithContext(ctx, cfg.RedisOptions)
		if rerr != nil {
			logger.Warnw("failed to connect to redis, redis caches will be disabled", "error", rerr.Error())
		} else {
			redisClient = rc.Client()
			serverManager.AddCloser("redis", func(context.Context) error { return rc.Close() })
			logger.Infow("Redis client initialized", "addr", cfg.RedisOptions.Addr())
		}
	}

	// 4. 初始化 LLM 供应商
	embedder, chat, err := cfg.newProviders(redisClient)
	if err != nil {
		return nil, err
	}

	// 5. 初始化工作池
	pools := pool.NewManager()
	serverManager.AddCloser("pools", func(context.Context) error {
		return pools.ReleaseAllTimeout(5 * time.Second)
	})
	embedPool, err := pools.Register(poolEmbedding, pool.EmbeddingPool, cfg.PoolOptions.EmbeddingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	backgroundPool, err := pools.Register(poolBackground, pool.BackgroundPool, cfg.PoolOptions.BackgroundConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create background pool: %w", err)
	}
	logger.Infow("Worker pools initialized", "pools", pools.List())

	// 6. 初始化向量索引后端
	backend, err := cfg.newBackend(ctx, serverManager)
	if err != nil {
		return nil, err
	}
	logger.Infow("Index backend initialized", "backend", backend.Name())

	// 7. 初始化 Biz 层
	m := metrics.Default()

	var l2 store.TranscriptStore
	if cfg.CacheOptions.Redis && redisClient != nil {
		l2 = store.NewRedisTranscriptStore(redisClient, cfg.CacheOptions.KeyPrefix, cfg.CacheOptions.TranscriptTTL)
	}
	pipelineCache, err := biz.NewPipelineCache(cache.Config{
		Policy:   cfg.CacheOptions.Policy,
		Capacity: cfg.CacheOptions.Capacity,
		TTL:      cfg.CacheOptions.TTL,
	}, l2, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline cache: %w", err)
	}
	serverManager.AddCloser("pipeline-cache", pipelineCache.Close)

	chunker, err := biz.NewChunker(cfg.VideoQAOptions.ChunkSize, cfg.VideoQAOptions.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	service := biz.NewVideoQAService(biz.Components{
		Source:   biz.NewYouTubeTranscriptSource(youtube.NewTranscriptClient(cfg.YouTubeOptions.TranscriptConfig(cfg.VideoQAOptions.Languages))),
		Metadata: youtube.NewMetadataClient(cfg.YouTubeOptions.MetadataConfig()),
		Chunker:  chunker,
		Indexer: biz.NewIndexer(embedder, backend, embedPool, &biz.IndexerConfig{
			BatchSize:   cfg.VideoQAOptions.EmbedBatchSize,
			Concurrency: cfg.VideoQAOptions.EmbedConcurrency,
			TopK:        cfg.VideoQAOptions.TopK,
		}, m),
		Generator: biz.NewGenerator(chat, &biz.GeneratorConfig{
			Incremental: cfg.VideoQAOptions.IncrementalStream,
		}, m),
		Cache:      pipelineCache,
		Background: backgroundPool,
		Metrics:    m,
	}, &biz.ServiceConfig{
		StrictVideoID:      cfg.VideoQAOptions.StrictVideoID,
		TopK:               cfg.VideoQAOptions.TopK,
		MetadataWait:       cfg.VideoQAOptions.MetadataWait,
		StreamMetadataWait: cfg.VideoQAOptions.StreamMetadataWait,
	})
	logger.Infow("Video QA service initialized",
		"cache.policy", cfg.CacheOptions.Policy,
		"cache.redis", l2 != nil,
		"chunk_size", cfg.VideoQAOptions.ChunkSize,
		"top_k", cfg.VideoQAOptions.TopK,
		"incremental_stream", cfg.VideoQAOptions.IncrementalStream,
	)

	// 8. 初始化 Handler 层
	videoQAHandler := handler.NewVideoQAHandler(service, m)
	logger.Info("Handler layer initialized")

	// 9. 初始化 HTTP 服务器
	httpServer := httpserver.NewServer(cfg.HTTPOptions)
	httpServer.SetValidator(validator.Global())
	serverManager.AddServer(httpServer)

	// 10. 注册路由
	routerCfg := router.Config{Auth: cfg.AuthOptions}
	if cfg.RateLimitOptions.Enabled {
		limiter := middleware.NewMemoryRateLimiter(cfg.RateLimitOptions)
		go limiter.RunCleanup(ctx, time.Minute)
		routerCfg.Limiter = limiter
	}
	router.Register(httpServer.Engine(), videoQAHandler, routerCfg)

	logger.Infow("Video QA service is ready", "addr", cfg.HTTPOptions.Addr)
	return &Server{srv: serverManager}, nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx)
}

// newProviders builds the embedding and chat providers. The embedding cache
// wraps the resilient provider so that hits skip retries.
func (cfg *Config) newProviders(redisClient goredis.UniversalClient) (llm.EmbeddingProvider, llm.ChatProvider, error) {
	rawEmbedder, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	var embedder llm.EmbeddingProvider = rawEmbedder
	if cfg.EmbeddingOptions.CircuitBreaker {
		embedder = resilience.NewResilientEmbeddingProvider(rawEmbedder, retryConfig(cfg.EmbeddingOptions), nil)
	}
	if cfg.CacheOptions.EmbeddingCache && redisClient != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, &llm.EmbeddingCacheConfig{
			TTL:       cfg.CacheOptions.EmbeddingTTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix + "emb:",
		})
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	rawChat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	var chat llm.ChatProvider = rawChat
	if cfg.ChatOptions.CircuitBreaker {
		chat = resilience.NewResilientChatProvider(rawChat, retryConfig(cfg.ChatOptions), nil)
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)
	return embedder, chat, nil
}

func retryConfig(opts *llmopts.ProviderOptions) *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = opts.MaxRetries + 1
	return rc
}

// newBackend connects the store selected by videoqa.index-backend.
func (cfg *Config) newBackend(ctx context.Context, mgr *server.Manager) (store.Backend, error) {
	var clients store.Clients

	switch cfg.VideoQAOptions.IndexBackend {
	case store.BackendMilvus:
		c, err := milvus.New(cfg.MilvusOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		mgr.AddCloser("milvus", c.Close)
		clients.Milvus = c
		logger.Infow("Milvus client initialized", "address", cfg.MilvusOptions.Address)
	case store.BackendPGVector:
		c, err := postgres.NewWithContext(ctx, cfg.PostgresOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		mgr.AddCloser("postgres", func(context.Context) error { return c.Close() })
		clients.Postgres = c
		logger.Infow("Postgres client initialized",
			"host", cfg.PostgresOptions.Host,
			"table", cfg.PostgresOptions.Table,
		)
	}

	return store.NewBackend(cfg.VideoQAOptions.IndexBackend, clients)
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Index backend: %s\n", cfg.VideoQAOptions.IndexBackend)
}
