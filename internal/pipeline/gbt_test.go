package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

func gbmConfig() config.PipelineConfig {
	cfg := rangeConfig()
	cfg.ForecastModel = config.ModelGBM
	cfg.GBM = config.GBMConfig{
		MaxDepth:     3,
		LearningRate: 0.1,
		MinTrain:     10,
		MaxIters:     5,
		Seed:         42,
	}
	return cfg
}

func variedSeries(n int, missingAt ...int) *domain.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i%7) * 1.3
	}
	for _, i := range missingAt {
		values[i] = math.NaN()
	}
	return hourlySeries(values, nil)
}

func TestGBMForecaster_FitInsufficientData(t *testing.T) {
	s := variedSeries(6)
	f := newGBMForecaster(gbmConfig())

	assert.ErrorIs(t, f.Fit(s), ErrInsufficientData)
}

func TestGBMForecaster_PredictsConstantSeries(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 2.0
	}
	values[20] = math.NaN()
	s := hourlySeries(values, nil)

	f := newGBMForecaster(gbmConfig())
	require.NoError(t, f.Fit(s))

	got, err := f.Predict(s, 20)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestGBMForecaster_MissingLagsNotEligible(t *testing.T) {
	s := variedSeries(40, 2, 25)
	f := newGBMForecaster(gbmConfig())
	require.NoError(t, f.Fit(s))

	// Index 2 has no lag-3 sample at all.
	_, err := f.Predict(s, 2)
	assert.ErrorIs(t, err, errNotEligible)

	// Index 26's lag-1 neighbor (25) is itself missing.
	_, err = f.Predict(s, 26)
	assert.ErrorIs(t, err, errNotEligible)
}

func TestGBMForecaster_PredictionsWithinRange(t *testing.T) {
	s := variedSeries(48, 30)
	f := newGBMForecaster(gbmConfig())
	require.NoError(t, f.Fit(s))

	got, err := f.Predict(s, 30)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 150.0)
}

func TestGBMForecaster_DeterministicForFixedSeed(t *testing.T) {
	a := newGBMForecaster(gbmConfig())
	b := newGBMForecaster(gbmConfig())

	sa := variedSeries(48, 30)
	sb := variedSeries(48, 30)
	require.NoError(t, a.Fit(sa))
	require.NoError(t, b.Fit(sb))

	va, err := a.Predict(sa, 30)
	require.NoError(t, err)
	vb, err := b.Predict(sb, 30)
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestRunForecast_GBMUnlocksOnePointPerRound(t *testing.T) {
	// Lags are read from the fit-time snapshot, so each round reaches
	// exactly one step further into a trailing gap run: a single round
	// fills one point, and a 10-point run against a 5-round budget leaves
	// the last 5 points for later stages.
	s := variedSeries(50, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49)
	prov := NewProvenance(s.Len())
	cfg := gbmConfig()

	runForecast(s, prov, newGBMForecaster(cfg), 1, testLogger())
	assert.True(t, s.Labeled(40))
	assert.Equal(t, 9, s.MissingCount())

	s = variedSeries(50, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49)
	prov = NewProvenance(s.Len())
	runForecast(s, prov, newGBMForecaster(cfg), cfg.GBM.MaxIters, testLogger())

	for i := 40; i < 45; i++ {
		assert.True(t, s.Labeled(i), "index %d", i)
		assert.Equal(t, domain.MethodGBMForecast, prov.Method(i))
	}
	for i := 45; i < 50; i++ {
		assert.True(t, s.Missing(i), "index %d", i)
		assert.Equal(t, "", prov.Method(i))
	}
}

func TestRunForecast_GBMFillsForwardGapRun(t *testing.T) {
	s := variedSeries(34, 30, 31, 32, 33)
	prov := NewProvenance(s.Len())
	cfg := gbmConfig()

	runForecast(s, prov, newGBMForecaster(cfg), cfg.GBM.MaxIters, testLogger())

	for i := 30; i < 34; i++ {
		assert.True(t, s.Labeled(i), "index %d", i)
		assert.Equal(t, domain.MethodGBMForecast, prov.Method(i))
		assert.GreaterOrEqual(t, s.Values[i], 0.0)
		assert.LessOrEqual(t, s.Values[i], 150.0)
	}
}

func TestTrainGBT_LearnsSimpleSplit(t *testing.T) {
	// Hour < 12 maps to 1.0, hour >= 12 maps to 9.0; the ensemble should
	// separate the two groups after enough boosting rounds.
	var x [][]float64
	var y []float64
	for i := 0; i < 48; i++ {
		row := make([]float64, featCount)
		row[featLag1], row[featLag2], row[featLag3] = 1, 1, 1
		row[featHour] = float64(i % 24)
		target := 1.0
		if i%24 >= 12 {
			target = 9.0
		}
		x = append(x, row)
		y = append(y, target)
	}

	m, err := trainGBT(x, y, gbtOptions{maxDepth: 2, learnRate: 0.1, estimators: 100, seed: 1})
	require.NoError(t, err)

	low := make([]float64, featCount)
	low[featLag1], low[featLag2], low[featLag3] = 1, 1, 1
	low[featHour] = 3
	high := make([]float64, featCount)
	high[featLag1], high[featLag2], high[featLag3] = 1, 1, 1
	high[featHour] = 20

	assert.InDelta(t, 1.0, m.predict(low), 0.5)
	assert.InDelta(t, 9.0, m.predict(high), 0.5)
}

func TestTrainGBT_EmptyTrainingSet(t *testing.T) {
	_, err := trainGBT(nil, nil, gbtOptions{maxDepth: 2, learnRate: 0.1, estimators: 10, seed: 1})
	assert.Error(t, err)
}
