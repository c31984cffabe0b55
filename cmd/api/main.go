package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project/internal/api"
	"project/internal/application/factories/infrastructure"
	"project/internal/config"
	"project/internal/infrastructure/postgres"
	"project/internal/mapper"
	"project/internal/metastore"
	"project/internal/store/bulk"
	"project/internal/store/stream"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it permission checks go straight to
	// postgres on every request.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", "error", err)
		redisClient = nil
	}

	s3Client, err := infraFactory.S3(ctx)
	if err != nil {
		logger.Error("failed to init s3", "error", err)
		os.Exit(1)
	}

	// Metastore: postgres-backed write keys behind a redis cache.
	apiKeys := postgres.NewAPIKeyRepository(pgPool)
	meta := metastore.NewCached(apiKeys, redisClient, cfg.Redis.PermissionTTL)

	// Stores: stream path plus the S3 overflow path.
	uploads := postgres.NewBulkUploadRepository(pgPool)
	bulkStore := bulk.New(s3Client, cfg.S3.Bucket, uploads, logger)
	eventStore := stream.New(infraFactory.StreamPublisher(), bulkStore, stream.Options{
		BatchSize:     cfg.Kafka.BatchSize,
		BulkThreshold: cfg.Kafka.BulkThreshold,
		Logger:        logger,
	})

	// Mapper pipeline, resolved once and shared read-only across requests.
	pipeline := mapper.NewPipeline(
		mapper.ClientIPMapper{},
		mapper.UserAgentMapper{},
		mapper.CollectedAtMapper{},
	)

	handlers := api.NewHandlers(eventStore, meta, pipeline, logger)
	apiHandler := api.NewRouter(handlers, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}
