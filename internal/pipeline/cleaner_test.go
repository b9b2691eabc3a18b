package pipeline_test

import (
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
	"github.com/couchcryptid/precip-cleaner/internal/observability"
	"github.com/couchcryptid/precip-cleaner/internal/pipeline"
)

var fixtureBase = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MinValueMM:         0,
		MaxValueMM:         150,
		InterpolationLimit: 6,
		ForecastEnabled:    false,
		ForecastModel:      config.ModelGBM,
		GBM: config.GBMConfig{
			MaxDepth:     3,
			LearningRate: 0.1,
			MinTrain:     24,
			MaxIters:     5,
			Seed:         42,
		},
		ARIMA: config.ARIMAConfig{
			MinTrain:       48,
			MaxOrder:       3,
			Seasonal:       true,
			SeasonalPeriod: 24,
		},
		FallbackPolicy: config.FallbackMedianOrFloor,
	}
}

func newTestCleaner(t *testing.T, cfg config.PipelineConfig) *pipeline.Cleaner {
	t.Helper()
	return pipeline.NewCleaner(cfg, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
}

func rawRow(sensorID string, hour int, value float64) domain.RawMeasurement {
	return domain.RawMeasurement{
		SensorID: sensorID,
		TS:       fixtureBase.Add(time.Duration(hour) * time.Hour),
		Value:    &value,
		Variable: "precipitacion",
	}
}

func gapRow(sensorID string, hour int) domain.RawMeasurement {
	return domain.RawMeasurement{
		SensorID: sensorID,
		TS:       fixtureBase.Add(time.Duration(hour) * time.Hour),
		Variable: "precipitacion",
	}
}

// hourlyFixture generates a realistic raw batch: mostly small values with
// injected gaps, out-of-range spikes, and poor-quality points.
func hourlyFixture(sensors, hours int, seed int64) []domain.RawMeasurement {
	rng := rand.New(rand.NewSource(seed))
	var rows []domain.RawMeasurement
	for s := 0; s < sensors; s++ {
		id := fmt.Sprintf("SENSOR_%03d", s+1)
		for h := 0; h < hours; h++ {
			row := gapRow(id, h)
			switch roll := rng.Float64(); {
			case roll < 0.08:
				// gap
			case roll < 0.11:
				spike := 200.0 + rng.Float64()*100
				row.Value = &spike
			default:
				v := rng.ExpFloat64() * 2
				q := 0.9 + rng.Float64()*0.1
				row.Value = &v
				row.Quality = &q
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func TestCleanBatch_OutlierNulledAndRefilled(t *testing.T) {
	rows := []domain.RawMeasurement{
		rawRow("S1", 0, 1.0),
		rawRow("S1", 1, 200.0), // physically impossible spike
		rawRow("S1", 2, 3.0),
	}
	c := newTestCleaner(t, testPipelineConfig())

	out := c.CleanBatch(rows)
	require.Len(t, out, 3)

	spike := out[1]
	assert.NotZero(t, spike.QCFlags&domain.FlagOutlier)
	assert.NotZero(t, spike.QCFlags&domain.FlagImputed)
	require.NotNil(t, spike.ImputationMethod)
	assert.LessOrEqual(t, spike.ValueMM, 150.0)
	assert.GreaterOrEqual(t, spike.ValueMM, 0.0)
}

func TestCleanBatch_GapInterpolatedLinearly(t *testing.T) {
	rows := []domain.RawMeasurement{
		rawRow("S1", 0, 2.0),
		gapRow("S1", 1),
		rawRow("S1", 2, 6.0),
	}
	c := newTestCleaner(t, testPipelineConfig())

	out := c.CleanBatch(rows)
	require.Len(t, out, 3)

	filled := out[1]
	assert.InDelta(t, 4.0, filled.ValueMM, 1e-9)
	require.NotNil(t, filled.ImputationMethod)
	assert.Equal(t, domain.MethodTimeInterp, *filled.ImputationMethod)
	assert.NotZero(t, filled.QCFlags&domain.FlagImputed)
	assert.Zero(t, filled.QCFlags&domain.FlagOutlier)
}

func TestCleanBatch_AllMissingFixedZero(t *testing.T) {
	rows := []domain.RawMeasurement{
		gapRow("S1", 0),
		gapRow("S1", 1),
		gapRow("S1", 2),
	}
	cfg := testPipelineConfig()
	cfg.FallbackPolicy = config.FallbackFixedZero
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(rows)
	require.Len(t, out, 3)

	for _, row := range out {
		assert.Equal(t, 0.0, row.ValueMM)
		require.NotNil(t, row.ImputationMethod)
		assert.Equal(t, domain.MethodZeroFallback, *row.ImputationMethod)
		assert.NotZero(t, row.QCFlags&domain.FlagImputed)
		assert.Zero(t, row.QCFlags&domain.FlagOutlier)
	}
}

func TestCleanBatch_AllMissingMedianOrFloorUsesFloor(t *testing.T) {
	rows := []domain.RawMeasurement{gapRow("S1", 0), gapRow("S1", 1)}
	cfg := testPipelineConfig()
	cfg.MinValueMM = 0.5
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(rows)
	require.Len(t, out, 2)
	for _, row := range out {
		assert.Equal(t, 0.5, row.ValueMM)
		require.NotNil(t, row.ImputationMethod)
		assert.Equal(t, domain.MethodGlobalMedian, *row.ImputationMethod)
	}
}

func TestCleanBatch_PoorQualityNulled(t *testing.T) {
	lowQ := 0.2
	rows := []domain.RawMeasurement{
		rawRow("S1", 0, 1.0),
		rawRow("S1", 1, 50.0),
		rawRow("S1", 2, 3.0),
	}
	rows[1].Quality = &lowQ

	cfg := testPipelineConfig()
	minQ := 0.5
	cfg.MinQuality = &minQ
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(rows)
	require.Len(t, out, 3)

	poor := out[1]
	assert.NotZero(t, poor.QCFlags&domain.FlagPoorQuality)
	assert.NotZero(t, poor.QCFlags&domain.FlagImputed)
	assert.NotEqual(t, 50.0, poor.ValueMM)
}

func TestCleanBatch_ForecastDisabledUsesNoForecastLabels(t *testing.T) {
	rows := hourlyFixture(2, 96, 7)
	cfg := testPipelineConfig()
	cfg.ForecastEnabled = false
	c := newTestCleaner(t, cfg)

	for _, row := range c.CleanBatch(rows) {
		if row.ImputationMethod == nil {
			continue
		}
		assert.NotEqual(t, domain.MethodARIMAForecast, *row.ImputationMethod)
		assert.NotEqual(t, domain.MethodGBMForecast, *row.ImputationMethod)
	}
}

func TestCleanBatch_GBMForecastFillsTrailingGap(t *testing.T) {
	var rows []domain.RawMeasurement
	for h := 0; h < 48; h++ {
		rows = append(rows, rawRow("S1", h, float64(h%5)))
	}
	for h := 48; h < 52; h++ {
		rows = append(rows, gapRow("S1", h))
	}
	cfg := testPipelineConfig()
	cfg.ForecastEnabled = true
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(rows)
	require.Len(t, out, 52)

	for _, row := range out[48:] {
		require.NotNil(t, row.ImputationMethod)
		assert.Equal(t, domain.MethodGBMForecast, *row.ImputationMethod)
	}
}

func TestCleanBatch_OutputInvariants(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ForecastEnabled = true
	minQ := 0.5
	cfg.MinQuality = &minQ
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(hourlyFixture(3, 96, 42))
	require.NotEmpty(t, out)

	lastTS := map[string]time.Time{}
	for _, row := range out {
		assert.GreaterOrEqual(t, row.ValueMM, cfg.MinValueMM)
		assert.LessOrEqual(t, row.ValueMM, cfg.MaxValueMM)
		assert.Equal(t, domain.CleanVersion, row.Version)
		assert.Equal(t, row.Imputed(), row.ImputationMethod != nil,
			"IMPUTED flag must match the method label")

		if prev, ok := lastTS[row.SensorID]; ok {
			assert.True(t, prev.Before(row.TS), "timestamps ascend per sensor")
		}
		lastTS[row.SensorID] = row.TS
	}
}

func TestCleanBatch_Deterministic(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ForecastEnabled = true

	a := newTestCleaner(t, cfg).CleanBatch(hourlyFixture(3, 96, 42))
	b := newTestCleaner(t, cfg).CleanBatch(hourlyFixture(3, 96, 42))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("repeated cleaning runs differ (-first +second):\n%s", diff)
	}
}

func TestCleanBatch_SensorsGroupedAndSorted(t *testing.T) {
	rows := []domain.RawMeasurement{
		rawRow("S2", 0, 1.0),
		rawRow("S1", 0, 2.0),
		rawRow("S2", 1, 3.0),
	}
	c := newTestCleaner(t, testPipelineConfig())

	out := c.CleanBatch(rows)
	require.Len(t, out, 3)
	assert.Equal(t, "S1", out[0].SensorID)
	assert.Equal(t, "S2", out[1].SensorID)
	assert.Equal(t, "S2", out[2].SensorID)
}

func TestCleanBatch_DuplicateTimestampLastWins(t *testing.T) {
	rows := []domain.RawMeasurement{
		rawRow("S1", 0, 1.0),
		rawRow("S1", 0, 9.0), // later row for the same timestamp
	}
	c := newTestCleaner(t, testPipelineConfig())

	out := c.CleanBatch(rows)
	require.Len(t, out, 1)
	assert.Equal(t, 9.0, out[0].ValueMM)
	assert.Nil(t, out[0].ImputationMethod)
}

func TestCleanBatch_AggregationBucketsBeforeQC(t *testing.T) {
	v1, v2 := 1.0, 5.0
	rows := []domain.RawMeasurement{
		{SensorID: "S1", TS: fixtureBase.Add(2 * time.Minute), Value: &v1},
		{SensorID: "S1", TS: fixtureBase.Add(7 * time.Minute), Value: &v2},
	}
	cfg := testPipelineConfig()
	cfg.AggregationEnabled = true
	cfg.BucketWidth = 10 * time.Minute
	c := newTestCleaner(t, cfg)

	out := c.CleanBatch(rows)
	require.Len(t, out, 1)
	assert.Equal(t, fixtureBase, out[0].TS)
	assert.Equal(t, 5.0, out[0].ValueMM)
}

func TestCleanBatch_EmptyInput(t *testing.T) {
	c := newTestCleaner(t, testPipelineConfig())
	assert.Empty(t, c.CleanBatch(nil))
}
