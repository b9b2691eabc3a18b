package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
	"github.com/couchcryptid/precip-cleaner/internal/observability"
)

// Store is the raw/clean measurement storage the runner talks to.
type Store interface {
	// FetchRawSince returns ordered raw rows at or after since, filtered
	// to the configured variable and excluding timestamps already clean.
	FetchRawSince(ctx context.Context, since time.Time) ([]domain.RawMeasurement, error)
	// UpsertClean writes clean rows with last-write-wins semantics on
	// (sensor_id, ts, version) and returns the affected row count.
	UpsertClean(ctx context.Context, rows []domain.CleanMeasurement) (int64, error)
}

// Publisher pushes clean rows to downstream consumers. Optional.
type Publisher interface {
	PublishClean(ctx context.Context, rows []domain.CleanMeasurement) error
}

// RunStatus summarizes the most recent cleaning run.
type RunStatus struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	RawRows   int           `json:"raw_rows"`
	CleanRows int           `json:"clean_rows"`
	Upserted  int64         `json:"upserted"`
	DryRun    bool          `json:"dry_run"`
}

// Runner executes fetch-clean-persist cycles on a fixed interval. The
// wall-clock budget of each cycle belongs to the caller; the runner adds
// no internal timeout.
type Runner struct {
	store     Store
	publisher Publisher // nil disables publishing
	cleaner   *Cleaner
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	ready  atomic.Bool
	status atomic.Pointer[RunStatus]
}

// NewRunner wires a Runner. Pass a nil clock for real time; tests inject
// a fake for deterministic scheduling.
func NewRunner(store Store, publisher Publisher, cleaner *Cleaner, cfg *config.Config,
	logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		store:     store,
		publisher: publisher,
		cleaner:   cleaner,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no cleaning run has completed yet")
	}
	return nil
}

// Status returns the last run summary, if any run has completed.
func (r *Runner) Status() (RunStatus, bool) {
	st := r.status.Load()
	if st == nil {
		return RunStatus{}, false
	}
	return *st, true
}

// Run executes cleaning cycles until the context is cancelled. A failed
// cycle is logged and counted; the loop continues on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("cleaner started",
		"interval", r.cfg.RunInterval,
		"lookback", r.cfg.Lookback,
		"run_once", r.cfg.RunOnce,
		"dry_run", r.cfg.DryRun,
	)
	r.metrics.CleanerRunning.Set(1)
	defer r.metrics.CleanerRunning.Set(0)

	for {
		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("cleaning run failed", "error", err)
			r.metrics.RunsFailed.Inc()
		}
		if r.cfg.RunOnce {
			return nil
		}

		timer := r.clock.NewTimer(r.cfg.RunInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("cleaner stopping", "reason", ctx.Err())
			return nil
		case <-timer.Chan():
		}
	}
}

// RunOnce performs a single fetch-clean-persist cycle over the lookback
// window.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := r.clock.Now()
	cutoff := start.UTC().Add(-r.cfg.Lookback)

	raws, err := r.store.FetchRawSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("fetch raw measurements: %w", err)
	}
	r.metrics.RowsFetched.Add(float64(len(raws)))

	status := RunStatus{StartedAt: start.UTC(), RawRows: len(raws), DryRun: r.cfg.DryRun}

	if len(raws) == 0 {
		r.logger.Info("no raw measurements to process", "cutoff", cutoff)
		r.finishRun(&status, start)
		return nil
	}
	r.logger.Info("fetched raw measurements", "rows", len(raws), "cutoff", cutoff)

	cleaned := r.cleaner.CleanBatch(raws)
	r.metrics.RowsEmitted.Add(float64(len(cleaned)))
	status.CleanRows = len(cleaned)

	if len(cleaned) == 0 {
		r.logger.Info("nothing to persist after cleaning")
		r.finishRun(&status, start)
		return nil
	}

	if r.cfg.DryRun {
		r.logger.Info("dry-run enabled, skipping persistence", "clean_rows", len(cleaned))
		r.finishRun(&status, start)
		return nil
	}

	upserted, err := r.store.UpsertClean(ctx, cleaned)
	if err != nil {
		return fmt.Errorf("upsert clean measurements: %w", err)
	}
	r.metrics.RowsUpserted.Add(float64(upserted))
	status.Upserted = upserted
	r.logger.Info("upserted clean measurements", "rows", upserted)

	if r.publisher != nil {
		// Persistence already succeeded; publishing is best-effort.
		if err := r.publisher.PublishClean(ctx, cleaned); err != nil {
			r.logger.Warn("publish clean measurements failed", "error", err)
		}
	}

	r.finishRun(&status, start)
	return nil
}

func (r *Runner) finishRun(status *RunStatus, start time.Time) {
	status.Duration = r.clock.Since(start)
	r.metrics.RunDuration.Observe(status.Duration.Seconds())
	r.status.Store(status)
	r.ready.Store(true)
}
