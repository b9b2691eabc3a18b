package pipeline

import (
	"errors"
	"log/slog"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// Sentinel errors shared by forecast strategies.
var (
	// ErrInsufficientData means a strategy's minimum-data precondition is
	// unmet; the whole stage is skipped for that sensor.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrModelFailure means a fit or prediction failed numerically.
	ErrModelFailure = errors.New("model failure")
	// errNotEligible means the point cannot be predicted by this strategy
	// (missing lags, backward extrapolation, beyond the step cap).
	errNotEligible = errors.New("point not eligible for forecast")
)

// defaultForecastRounds bounds refit iterations for strategies without a
// configured iteration budget.
const defaultForecastRounds = 3

// Forecaster is the pluggable model behind the forecast gap-filling stage.
// Fit trains on the labeled portion of the series and returns
// ErrInsufficientData when its minimum-data precondition is unmet. Predict
// returns a value for the missing point at index i, already clipped to the
// configured physical range. Either model family can be substituted by
// configuration without altering the surrounding cascade.
type Forecaster interface {
	Method() string
	Fit(s *domain.Series) error
	Predict(s *domain.Series, i int) (float64, error)
}

// newForecaster selects the configured strategy.
func newForecaster(cfg config.PipelineConfig) Forecaster {
	if cfg.ForecastModel == config.ModelARIMA {
		return newARForecaster(cfg)
	}
	return newGBMForecaster(cfg)
}

// runForecast drives a Forecaster over the series: fit, predict every
// currently-missing eligible point, then refit, because filled points can
// make further points fillable. Stops when the round budget is exhausted
// or a round makes no progress. Insufficient data skips the stage;
// prediction failures skip only the affected point.
func runForecast(s *domain.Series, prov *Provenance, f Forecaster, rounds int, logger *slog.Logger) {
	if rounds < 1 {
		rounds = 1
	}
	for r := 0; r < rounds; r++ {
		if err := f.Fit(s); err != nil {
			if errors.Is(err, ErrInsufficientData) {
				logger.Debug("forecast stage skipped", "model", f.Method(), "error", err)
			} else {
				logger.Warn("forecast fit failed, aborting stage", "model", f.Method(), "error", err)
			}
			return
		}

		progress := false
		for i := 0; i < s.Len(); i++ {
			if s.Labeled(i) {
				continue
			}
			v, err := f.Predict(s, i)
			if err != nil {
				continue
			}
			s.Values[i] = v
			prov.Label(i, f.Method())
			progress = true
		}

		if !progress || s.MissingCount() == 0 {
			return
		}
	}
}

// clamp clips v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
