package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
	"github.com/couchcryptid/precip-cleaner/internal/observability"
)

// Cleaner runs the per-sensor QC + imputation cascade:
//
//	raw rows -> (optional bucketing) -> QC null-out -> forecast fill ->
//	time interpolation -> hourly median -> fallback -> clamp -> emit
//
// Each stage only touches points still missing when it runs, so the first
// stage to fill a point fixes its imputation label.
type Cleaner struct {
	cfg     config.PipelineConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewCleaner(cfg config.PipelineConfig, logger *slog.Logger, metrics *observability.Metrics) *Cleaner {
	return &Cleaner{cfg: cfg, logger: logger, metrics: metrics}
}

// CleanBatch groups raw rows by sensor and runs each sensor's cascade to
// completion. Sensors are isolated: a panic or error cleaning one sensor
// discards that sensor's rows and the batch continues. Sensors are
// processed in sorted order so output is deterministic.
func (c *Cleaner) CleanBatch(rows []domain.RawMeasurement) []domain.CleanMeasurement {
	bySensor := make(map[string][]domain.RawMeasurement)
	for _, r := range rows {
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r)
	}
	sensorIDs := make([]string, 0, len(bySensor))
	for id := range bySensor {
		sensorIDs = append(sensorIDs, id)
	}
	sort.Strings(sensorIDs)

	var out []domain.CleanMeasurement
	for _, id := range sensorIDs {
		cleaned, err := c.cleanSensor(id, bySensor[id])
		if err != nil {
			c.logger.Error("sensor cleaning failed, discarding its rows",
				"sensor_id", id, "error", err)
			c.metrics.SensorsFailed.Inc()
			continue
		}
		c.metrics.SensorsProcessed.Inc()
		out = append(out, cleaned...)
	}
	return out
}

func (c *Cleaner) cleanSensor(sensorID string, rows []domain.RawMeasurement) (cleaned []domain.CleanMeasurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			cleaned = nil
			err = fmt.Errorf("panic cleaning sensor %s: %v", sensorID, r)
		}
	}()

	s := domain.NewSeries(rows)
	if s.Len() == 0 {
		return nil, nil
	}
	if c.cfg.AggregationEnabled {
		s = bucketize(s, c.cfg.BucketWidth)
	}
	prov := NewProvenance(s.Len())

	applyQC(s, prov, c.cfg)

	if c.cfg.ForecastEnabled {
		f := newForecaster(c.cfg)
		rounds := defaultForecastRounds
		if c.cfg.ForecastModel == config.ModelGBM {
			rounds = c.cfg.GBM.MaxIters
		}
		runForecast(s, prov, f, rounds, c.logger.With("sensor_id", sensorID))
	}

	interpolateTime(s, prov, c.cfg.InterpolationLimit)
	fillHourMedian(s, prov)
	fillFallback(s, prov, c.cfg)

	return c.emit(sensorID, s, prov), nil
}

// emit clamps every final value to the physical range, sets IMPUTED
// wherever an imputation label was recorded, and drops any point still
// missing after fallback. That drop is an escape valve only; with any
// labeled data the fallback leaves nothing missing.
func (c *Cleaner) emit(sensorID string, s *domain.Series, prov *Provenance) []domain.CleanMeasurement {
	out := make([]domain.CleanMeasurement, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if s.Missing(i) {
			continue
		}
		flags := prov.Flags(i)
		var methodPtr *string
		if m := prov.Method(i); m != "" {
			flags |= domain.FlagImputed
			methodPtr = &m
			c.metrics.ImputedPoints.WithLabelValues(m).Inc()
		}
		out = append(out, domain.CleanMeasurement{
			SensorID:         sensorID,
			TS:               s.Times[i],
			ValueMM:          clamp(s.Values[i], c.cfg.MinValueMM, c.cfg.MaxValueMM),
			QCFlags:          flags,
			ImputationMethod: methodPtr,
			Version:          domain.CleanVersion,
		})
	}
	return out
}
