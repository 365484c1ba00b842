package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/config"
	"github.com/kailas-cloud/loom/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/loom/internal/db/redis"
	"github.com/kailas-cloud/loom/internal/domain"
	logpkg "github.com/kailas-cloud/loom/internal/logger"
	"github.com/kailas-cloud/loom/internal/metrics"
	"github.com/kailas-cloud/loom/internal/objectstore"
	bindingrepo "github.com/kailas-cloud/loom/internal/repository/binding"
	collectionrepo "github.com/kailas-cloud/loom/internal/repository/collection"
	documentrepo "github.com/kailas-cloud/loom/internal/repository/document"
	"github.com/kailas-cloud/loom/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/loom/internal/repository/index"
	recordrepo "github.com/kailas-cloud/loom/internal/repository/record"
	transformerrepo "github.com/kailas-cloud/loom/internal/repository/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/seed"
	"github.com/kailas-cloud/loom/internal/task"
	chiTransport "github.com/kailas-cloud/loom/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/loom/internal/transport/openai"
	batchuc "github.com/kailas-cloud/loom/internal/usecase/batch"
	bindinguc "github.com/kailas-cloud/loom/internal/usecase/binding"
	collectionuc "github.com/kailas-cloud/loom/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/loom/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/loom/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/loom/internal/usecase/health"
	indexuc "github.com/kailas-cloud/loom/internal/usecase/index"
	recorduc "github.com/kailas-cloud/loom/internal/usecase/record"
	transformeruc "github.com/kailas-cloud/loom/internal/usecase/transformer"
	"github.com/kailas-cloud/loom/internal/version"
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

	logger.Info("Starting loom API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.Server.Port),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()

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
	logger.Info("Connected to postgres")

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
	logger.Info("Connected to redis")

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Entity tables, in foreign-key order.
	collRepo := collectionrepo.New(pg)
	docRepo := documentrepo.New(pg)
	transformerRepo := transformerrepo.New(pg)
	indexRepo := indexrepo.New(pg)
	bindingRepo := bindingrepo.New(pg)
	recordRepo := recordrepo.New(pg)

	// Bindings reference collections, transformers and indexes; documents
	// reference collections. Creation order follows the foreign keys.
	for _, ensure := range []func(context.Context) error{
		collRepo.EnsureTable,
		docRepo.EnsureTable,
		transformerRepo.EnsureTable,
		indexRepo.EnsureTable,
		bindingRepo.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			logger.Fatal("Failed to ensure table", zap.Error(err))
		}
	}

	// Task plane: banded streams plus the reload broadcast channel.
	dispatcher := task.NewDispatcher(rds, logger,
		task.WithStreamPrefix(cfg.Queue.StreamPrefix),
		task.WithMaxLen(cfg.Queue.MaxLen),
	)
	if err := dispatcher.EnsureGroups(ctx, cfg.Queue.ConsumerGroup); err != nil {
		logger.Fatal("Failed to create consumer groups", zap.Error(err))
	}

	notifier := task.NewNotifier(rds, rds, logger,
		task.WithReloadChannel(cfg.Queue.ReloadChannel),
		task.WithBroadcastTimeout(time.Duration(cfg.Queue.BroadcastTimeoutSec)*time.Second),
	)

	schemaRegistry := schema.New(pg, indexRepo, dispatcher, logger)

	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, rds, logger)

	// Content locator refresh is optional: without an object store, URLs are
	// dispatched as stored.
	var locators bindinguc.LocatorRefresher
	if cfg.ObjectStore.Enabled {
		mc, err := minio.New(cfg.ObjectStore.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.ObjectStore.AccessKey, cfg.ObjectStore.SecretKey, ""),
			Secure: cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			logger.Fatal("Failed to create object store client", zap.Error(err))
		}
		locators = objectstore.NewRefresher(mc, cfg.ObjectStore.Bucket, logger).WithTTL(
			time.Duration(cfg.ObjectStore.PresignTTLSec)*time.Second,
			time.Duration(cfg.ObjectStore.RefreshMarginSec)*time.Second,
		)
		logger.Info("Object store locator refresh enabled",
			zap.String("endpoint", cfg.ObjectStore.Endpoint),
			zap.String("bucket", cfg.ObjectStore.Bucket),
		)
	}

	// Use case services
	bindingSvc := bindinguc.New(
		bindingRepo, transformerRepo, indexRepo, schemaRegistry,
		collRepo, docRepo, dispatcher, locators, logger,
	)
	collSvc := collectionuc.New(collRepo, docRepo, bindingRepo, logger)
	docSvc := documentuc.New(docRepo, collRepo, bindingSvc)
	batchSvc := batchuc.New(docSvc, docSvc, collRepo)
	transformerSvc := transformeruc.New(transformerRepo, bindingRepo, notifier, logger)
	indexSvc := indexuc.New(indexRepo, schemaRegistry, bindingRepo, notifier, logger)
	recordSvc := recorduc.New(recordRepo, schemaRegistry, docRepo, queryEmbedder)
	healthSvc := healthuc.New(pg, rds, newEmbeddingHealthChecker(queryEmbedder))

	if !cfg.Seed.Disabled {
		seeder := seed.New(collRepo, transformerRepo, indexRepo, seed.Params{
			DefaultCollection: cfg.Seed.DefaultCollection,
			EmbeddingModel:    cfg.Embedding.Model,
			EmbeddingDims:     cfg.Embedding.Dimensions,
		}, logger)
		if err := seeder.Run(ctx); err != nil {
			logger.Fatal("Failed to seed defaults", zap.Error(err))
		}
	}

	server := chiTransport.NewServer(
		collSvc, docSvc, batchSvc, transformerSvc, indexSvc, bindingSvc,
		recordSvc, healthSvc, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) healthuc.EmbeddingChecker {
	if _, ok := embedder.(domain.DisabledEmbedder); ok {
		return nil
	}
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
// Without an API key the chain collapses to a rejecting stub so record
// queries fail with a provider error instead of a nil dereference.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
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

	// Instruction prefix goes outermost so the cache key includes it.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
