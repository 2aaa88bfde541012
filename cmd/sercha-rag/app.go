package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/fetcher"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-rag/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-rag/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-rag/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/extractors"
	"github.com/custodia-labs/sercha-rag/internal/metrics"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db          *postgres.DB
	redisClient *redis.Client
	queue       driven.TaskQueue
	runtime     *runtime.Services

	ingest driving.IngestService
	answer driving.AnswerService
	pages  driving.PageService
}

// newApp connects to storage, applies the schema and builds the services.
// AI services that fail validation are left unset; the affected operations
// then report service unavailable.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	// ===== PostgreSQL =====
	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.Dimensions = cfg.AI.Embedding.Dimensions
	dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	if cfg.Database.ConnMaxLifetime > 0 {
		dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	db, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.db = db

	if err := db.InitSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("postgres connected", "dimensions", db.Dimensions())

	// ===== Queue and lock (Redis if configured, otherwise PostgreSQL) =====
	var lock driven.DistributedLock
	backend := "postgres"
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redisClient = redis.NewClient(opts)
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		a.queue, err = redisqueue.NewQueue(a.redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			a.Close()
			return nil, err
		}
		lock = redisadapter.NewLock(a.redisClient)
		backend = "redis"
	} else {
		a.queue = postgresqueue.NewQueue(db.DB)
		lock = postgres.NewAdvisoryLock(db)
	}
	logger.Info("task queue ready", "backend", backend)

	// ===== Runtime services =====
	a.runtime = runtime.NewServices(domain.NewRuntimeConfig(backend))

	var renderer driven.Renderer
	if cfg.Fetch.ChromeEnabled {
		userAgent := cfg.Fetch.UserAgent
		if userAgent == "" {
			userAgent = fetcher.DefaultUserAgent
		}
		chrome, err := fetcher.NewChromeRenderer(userAgent, cfg.Fetch.ChromePath)
		if err != nil {
			logger.Warn("headless chrome unavailable, render_js requests will fail", "error", err)
		} else {
			renderer = chrome
			a.runtime.SetRenderer(chrome)
		}
	}

	a.configureAI(ctx, db.Dimensions())

	// ===== Ingestion components =====
	fetchCfg := fetcher.DefaultConfig()
	if cfg.Fetch.UserAgent != "" {
		fetchCfg.UserAgent = cfg.Fetch.UserAgent
	}
	if cfg.Fetch.Timeout > 0 {
		fetchCfg.Timeout = cfg.Fetch.Timeout
	}
	fetchCfg.HostRPS = cfg.Fetch.HostRPS
	fetchCfg.IgnoreRobots = cfg.Fetch.IgnoreRobots
	pageFetcher := fetcher.New(fetchCfg, renderer, logger)

	tokenizer, err := postprocessors.NewBPETokenizer(cfg.Chunk.Encoding)
	if err != nil {
		a.Close()
		return nil, err
	}
	pipeline, err := postprocessors.DefaultPipeline(tokenizer, postprocessors.ChunkConfig{
		WindowTokens:  cfg.Chunk.Size,
		OverlapTokens: cfg.Chunk.Overlap,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	store := postgres.NewPageStore(db)

	// ===== Services =====
	a.ingest = services.NewIngestService(services.IngestConfig{
		Store:     store,
		Queue:     a.queue,
		Lock:      lock,
		Fetcher:   pageFetcher,
		Extractor: extractors.DefaultRegistry(),
		Pipeline:  pipeline,
		Services:  a.runtime,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	a.answer = services.NewAnswerService(services.AnswerConfig{
		Store:       store,
		Services:    a.runtime,
		Metrics:     a.metrics,
		Logger:      logger,
		DefaultTopK: cfg.Retrieval.TopK,
	})
	a.pages = services.NewPageService(store, logger)

	rc := a.runtime.Config()
	logger.Info("runtime config",
		"queue_backend", rc.QueueBackend,
		"embedding", rc.EmbeddingAvailable(),
		"llm", rc.LLMAvailable(),
		"renderer", rc.RendererAvailable(),
	)
	return a, nil
}

// configureAI builds the embedding and generation services and installs the
// ones that pass validation.
func (a *app) configureAI(ctx context.Context, storeDimensions int) {
	factory := ai.NewFactory()

	emb, err := factory.CreateEmbeddingService(&a.cfg.AI.Embedding)
	if err == nil {
		err = a.runtime.ValidateAndSetEmbedding(ctx, emb, storeDimensions)
	}
	if err != nil {
		a.logger.Warn("embedding service not available", "provider", a.cfg.AI.Embedding.Provider, "error", err)
	}

	llm, err := factory.CreateLLMService(&a.cfg.AI.LLM)
	if err == nil {
		err = a.runtime.ValidateAndSetLLM(ctx, llm)
	}
	if err != nil {
		a.logger.Warn("llm service not available", "provider", a.cfg.AI.LLM.Provider, "error", err)
	}
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.runtime != nil {
		_ = a.runtime.Close()
	}
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
