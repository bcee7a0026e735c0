// Package main is the entry point for the curator service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/curator/internal/config"
	"github.com/MikeSquared-Agency/curator/internal/embeddings"
	"github.com/MikeSquared-Agency/curator/internal/encryption"
	"github.com/MikeSquared-Agency/curator/internal/hermes"
	"github.com/MikeSquared-Agency/curator/internal/pipeline"
	"github.com/MikeSquared-Agency/curator/internal/semantic"
	"github.com/MikeSquared-Agency/curator/internal/server"
	"github.com/MikeSquared-Agency/curator/internal/store"
	"github.com/MikeSquared-Agency/curator/internal/vectorindex"
)

func main() {
	// Config
	cfg, err := config.Load(os.Getenv("CURATOR_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Logger
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Encryption
	encryptor := loadEncryptor(cfg, logger)

	// Embedding provider
	provider, err := embeddings.New(embeddings.Backend{
		Kind:         cfg.EmbeddingBackend,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		VisionModel:  cfg.OpenAIVisionModel,
		SidecarURL:   cfg.EmbeddingSidecarURL,
	})
	if err != nil {
		logger.Error("failed to initialize embedding provider", "error", err)
		os.Exit(1)
	}
	logger.Info("embedding provider initialized", "backend", provider.Name())
	embedder := semantic.NewEmbedder(provider, semantic.Options{
		CallTimeout:   cfg.CallTimeout,
		RatePerSecond: cfg.EmbedRatePerSecond,
	}, logger)

	// Vector index
	indexes, err := vectorindex.NewFactory(cfg.VectorBackend, db, logger)
	if err != nil {
		logger.Error("failed to initialize vector index", "error", err)
		os.Exit(1)
	}
	defer indexes.Close()

	// Job registry
	registry, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize job registry", "error", err)
		os.Exit(1)
	}

	// Hermes (NATS), optional
	var hermesClient *hermes.Client
	var sink pipeline.Sink
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(cfg.NatsURL, logger)
		if err != nil {
			logger.Warn("failed to connect to Hermes (NATS), running without event bus", "error", err)
			hermesClient = nil
		} else {
			defer hermesClient.Close()
			logger.Info("connected to Hermes (NATS)", "url", cfg.NatsURL)
			sink = hermes.NewPublisher(hermesClient, logger)
		}
	}

	// Pipeline
	items := store.NewCatalogStore(db)
	tenants := store.NewTenantStore(db, encryptor)
	runs := store.NewRunStore(db)

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Tenants:  tenants,
		Items:    items,
		Indexes:  indexes,
		Importer: pipeline.NewImporter(items, pipeline.ImportPolicy(cfg.ImportFailurePolicy), cfg.ImportPageSize, logger),
		Indexer:  pipeline.NewIndexer(items, embedder, indexes, cfg.CallTimeout, logger),
		Registry: registry,
		Runs:     runs,
		Sink:     sink,
		Logger:   logger,
	}, cfg.ErrorRetention)

	if hermesClient != nil {
		subscriber := hermes.NewSubscriber(hermesClient, orch, logger)
		if err := subscriber.Start(ctx); err != nil {
			logger.Warn("failed to start Hermes subscriber", "error", err)
		} else {
			defer subscriber.Stop()
		}
	}

	pipeline.NewScheduler(tenants, orch, cfg.AutoSyncInterval, cfg.IndexBatchSize, logger).Start(ctx)

	// Server
	deps := server.Deps{
		DB:      db,
		Jobs:    orch,
		Tenants: tenants,
		Items:   items,
		Runs:    runs,
	}
	if hermesClient != nil {
		deps.Hermes = hermesClient
	}
	srv := server.New(cfg, deps, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		if err := orch.Shutdown(shutdownCtx); err != nil {
			logger.Error("jobs did not stop in time", "error", err)
		}
	}()

	logger.Info("curator starting", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-stopped
	logger.Info("curator stopped")
}

func loadEncryptor(cfg *config.Config, logger *slog.Logger) *encryption.Encryptor {
	key, err := encryption.LoadKey(cfg.EncryptionKey, cfg.EncryptionKeyPath)
	if err != nil {
		logger.Warn("failed to read encryption key", "error", err)
	}
	var encryptor *encryption.Encryptor
	if key != "" {
		encryptor, err = encryption.NewEncryptor(key)
		if err != nil {
			logger.Warn("failed to initialize encryptor", "error", err)
		}
	}
	if encryptor == nil {
		// Tenant credentials written under this key are unreadable after a restart.
		logger.Warn("no encryption key configured, using ephemeral key for development")
		k, _ := encryption.GenerateKey()
		if k != nil {
			encryptor, _ = encryption.NewEncryptor(k.Encode())
		}
	}
	return encryptor
}

func newRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Registry, error) {
	if cfg.JobRegistry != "redis" {
		return pipeline.NewMemoryRegistry(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("connected to redis job registry")
	return pipeline.NewRedisRegistry(rdb, cfg.JobLeaseTTL), nil
}
