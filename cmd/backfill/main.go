// Command backfill reprocesses historical raw measurements through the
// cleaning cascade in fixed-size time chunks, upserting clean rows as it
// goes. Re-running a window is safe: upserts are keyed on
// (sensor_id, ts, version).
//
// Usage:
//
//	BACKFILL_CHUNK_HOURS=24 DATABASE_URL=... go run ./cmd/backfill
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/precip-cleaner/internal/adapter/postgres"
	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/observability"
	"github.com/couchcryptid/precip-cleaner/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

// parseChunkHours reads BACKFILL_CHUNK_HOURS as a whole number of hours,
// defaulting to 24 when unset.
func parseChunkHours(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 24 * time.Hour, nil
	}
	hours, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid BACKFILL_CHUNK_HOURS: %w", err)
	}
	if hours <= 0 {
		return 0, errors.New("BACKFILL_CHUNK_HOURS must be positive")
	}
	return time.Duration(hours) * time.Hour, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	chunk, err := parseChunkHours(os.Getenv("BACKFILL_CHUNK_HOURS"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, cfg.Variable)
	if err != nil {
		return err
	}
	defer store.Close()

	minTS, maxTS, ok, err := store.RawTimeBounds(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("no raw measurements found")
		return nil
	}
	logger.Info("starting backfill", "from", minTS, "to", maxTS, "chunk", chunk, "dry_run", cfg.DryRun)

	cleaner := pipeline.NewCleaner(cfg.Pipeline, logger, metrics)

	var processed, upserted int64
	current := minTS.UTC().Truncate(time.Hour)
	end := maxTS.UTC().Add(time.Hour)

	for current.Before(end) {
		if ctx.Err() != nil {
			logger.Info("backfill interrupted", "at", current)
			return nil
		}
		windowEnd := current.Add(chunk)
		if windowEnd.After(end) {
			windowEnd = end
		}

		raws, err := store.FetchRawRange(ctx, current, windowEnd)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			current = windowEnd
			continue
		}
		processed += int64(len(raws))

		cleaned := cleaner.CleanBatch(raws)
		logger.Info("processed window",
			"from", current, "to", windowEnd,
			"raw_rows", len(raws), "clean_rows", len(cleaned))

		if !cfg.DryRun && len(cleaned) > 0 {
			n, err := store.UpsertClean(ctx, cleaned)
			if err != nil {
				return err
			}
			upserted += n
		}
		current = windowEnd
	}

	logger.Info("backfill finished", "raw_rows", processed, "upserted", upserted)
	return nil
}
