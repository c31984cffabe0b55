package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"project/internal/application/factories/infrastructure"
	"project/internal/config"
	"project/internal/infrastructure/postgres"
	"project/internal/loader"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics server for the loader
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Loader metrics listening on :9093")
		http.ListenAndServe(":9093", mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	uploads := postgres.NewBulkUploadRepository(pgPool)
	producer := infraFactory.BulkPublisher()

	p := loader.NewPoller(uploads, producer, cfg.Loader.Interval, cfg.Loader.BatchSize, logger)

	if err := p.Run(ctx); err != nil {
		logger.Error("loader stopped with error", "error", err)
	}

	logger.Info("loader exited")
}
