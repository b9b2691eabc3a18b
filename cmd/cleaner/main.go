// Command cleaner runs the precipitation cleaning service: it
// periodically fetches raw sensor rows from Postgres, runs the QC +
// imputation cascade per sensor, upserts versioned clean rows, and
// optionally publishes them to Kafka.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/precip-cleaner/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/precip-cleaner/internal/adapter/kafka"
	"github.com/couchcryptid/precip-cleaner/internal/adapter/postgres"
	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/observability"
	"github.com/couchcryptid/precip-cleaner/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, cfg.Variable)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Publishing is feature-flagged via KAFKA_SINK_TOPIC.
	var publisher pipeline.Publisher
	if cfg.KafkaSinkTopic != "" {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer writer.Close() //nolint:errcheck
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	cleaner := pipeline.NewCleaner(cfg.Pipeline, logger, metrics)
	runner := pipeline.NewRunner(store, publisher, cleaner, cfg, logger, metrics, nil)

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the cleaning loop on the main goroutine; it returns on context
	// cancellation or, with RUN_ONCE, after a single cycle.
	if err := runner.Run(ctx); err != nil {
		logger.Error("cleaning loop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("cleaner stopped")
}
