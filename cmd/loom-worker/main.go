package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/config"
	"github.com/kailas-cloud/loom/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/loom/internal/db/redis"
	"github.com/kailas-cloud/loom/internal/domain"
	logpkg "github.com/kailas-cloud/loom/internal/logger"
	"github.com/kailas-cloud/loom/internal/metrics"
	"github.com/kailas-cloud/loom/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/loom/internal/repository/index"
	transformerrepo "github.com/kailas-cloud/loom/internal/repository/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/transform"
	openaiEmb "github.com/kailas-cloud/loom/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/loom/internal/usecase/embedding"
	"github.com/kailas-cloud/loom/internal/version"
	"github.com/kailas-cloud/loom/internal/worker"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting loom worker",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("slots", cfg.Worker.Slots),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.NewStore(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to create postgres store", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.WaitForReady(ctx, time.Duration(cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}

	rds, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer rds.Close()

	if err := rds.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to postgres and redis")

	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()

	indexRepo := indexrepo.New(pg)
	transformerRepo := transformerrepo.New(pg)

	// Workers never create tables, so the registry carries no dispatcher.
	// Layouts are rebuilt from loom_indexes on cache miss.
	schemaRegistry := schema.New(pg, indexRepo, nil, logger)

	registry := transform.NewRegistry()
	builtins := map[string]transform.Handler{
		transform.PathCounter:    transform.Counter(),
		transform.PathChunks:     transform.Chunks(),
		transform.PathEmbeddings: transform.Embeddings(buildEmbedder(cfg.Embedding, rds, logger)),
	}
	for path, h := range builtins {
		if err := registry.Register(path, h); err != nil {
			logger.Fatal("Failed to register transformer", zap.String("path", path), zap.Error(err))
		}
	}
	logger.Info("Registered transformers", zap.Strings("paths", registry.Paths()))

	w, err := worker.New(worker.Config{
		Group:         cfg.Queue.ConsumerGroup,
		StreamPrefix:  cfg.Queue.StreamPrefix,
		Slots:         cfg.Worker.Slots,
		Block:         time.Duration(cfg.Worker.BlockSec) * time.Second,
		ClaimInterval: time.Duration(cfg.Queue.ClaimIntervalSec) * time.Second,
		ClaimMinIdle:  time.Duration(cfg.Queue.ClaimMinIdleSec) * time.Second,
		ReloadChannel: cfg.Queue.ReloadChannel,
	}, worker.Deps{
		Queue:        rds,
		Conns:        pg,
		Schemas:      schemaRegistry,
		Registry:     registry,
		Transformers: transformerRepo,
		Acks:         rds,
		Subscriber:   rds,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Failed to create worker", zap.Error(err))
	}

	if err := w.Run(ctx); err != nil {
		logger.Fatal("Worker terminated", zap.Error(err))
	}
	logger.Info("Worker stopped gracefully")
}

// buildEmbedder assembles the document-side chain: OpenAI -> Cached ->
// Instrumented -> Instruction. Without an API key the embeddings transformer
// stays registered but rejects every task with a provider error.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	store *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	if cfg.APIKey == "" {
		return domain.DisabledEmbedder{}
	}

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	if store != nil {
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger,
			embcache.WithTTL(time.Duration(cfg.CacheTTLSec)*time.Second))
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, logger)

	if cfg.DocumentInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.DocumentInstruction)
	}
	return embedder
}
