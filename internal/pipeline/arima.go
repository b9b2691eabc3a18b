package pipeline

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// maxForecastSteps caps how far past the end of training the classical
// model extrapolates. Forecasts further out are rejected per point.
const maxForecastSteps = 100

// arForecaster is the classical strategy: a seasonal autoregressive model
// fitted by least squares on the longest contiguous trailing run of
// labeled data. It forecasts forward only; points before the earliest
// labeled data are never filled by this stage.
type arForecaster struct {
	cfg config.PipelineConfig

	coefs       []float64 // intercept, ar lags 1..order, optional seasonal lag
	order       int
	seasonalLag int // 0 when the seasonal term is not included

	hist       []float64 // training run, oldest first
	anchor     int       // series index of the last labeled point at fit time
	anchorTime time.Time
	step       time.Duration

	path []float64 // cached recursive forecasts; path[k] is k+1 steps ahead
}

func newARForecaster(cfg config.PipelineConfig) *arForecaster {
	return &arForecaster{cfg: cfg}
}

func (f *arForecaster) Method() string { return domain.MethodARIMAForecast }

// Fit trains on the trailing contiguous run of labeled points. The
// seasonal lag term is included only when the run covers at least two
// full seasonal periods; otherwise a plain AR model bounded by the
// configured maximum order is used.
func (f *arForecaster) Fit(s *domain.Series) error {
	f.path = nil

	last := s.LastLabeled()
	if last < 0 {
		return ErrInsufficientData
	}
	start := last
	for start > 0 && s.Labeled(start-1) {
		start--
	}

	hist := make([]float64, last-start+1)
	copy(hist, s.Values[start:last+1])
	if len(hist) < f.cfg.ARIMA.MinTrain {
		return ErrInsufficientData
	}

	step := s.Step()
	if step <= 0 {
		return ErrInsufficientData
	}

	order := f.cfg.ARIMA.MaxOrder
	seasonalLag := 0
	if f.cfg.ARIMA.Seasonal && len(hist) >= 2*f.cfg.ARIMA.SeasonalPeriod {
		seasonalLag = f.cfg.ARIMA.SeasonalPeriod
	}

	maxLag := order
	if seasonalLag > maxLag {
		maxLag = seasonalLag
	}
	cols := 1 + order
	if seasonalLag > 0 {
		cols++
	}
	rows := len(hist) - maxLag
	if rows <= cols {
		return ErrInsufficientData
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, 1, nil)
	for r := 0; r < rows; r++ {
		t := r + maxLag
		x.Set(r, 0, 1)
		for k := 1; k <= order; k++ {
			x.Set(r, k, hist[t-k])
		}
		if seasonalLag > 0 {
			x.Set(r, cols-1, hist[t-seasonalLag])
		}
		y.Set(r, 0, hist[t])
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return fmt.Errorf("%w: ar least squares: %v", ErrModelFailure, err)
	}

	coefs := make([]float64, cols)
	for k := range coefs {
		c := beta.At(k, 0)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: non-finite ar coefficient", ErrModelFailure)
		}
		coefs[k] = c
	}

	f.coefs = coefs
	f.order = order
	f.seasonalLag = seasonalLag
	f.hist = hist
	f.anchor = last
	f.anchorTime = s.Times[last]
	f.step = step
	return nil
}

// Predict forecasts the missing point at index i. Only points strictly
// after the last labeled point are eligible, and only within
// maxForecastSteps of it; everything else is left for later stages.
func (f *arForecaster) Predict(s *domain.Series, i int) (float64, error) {
	if i <= f.anchor {
		return 0, errNotEligible
	}
	steps := int(math.Round(float64(s.Times[i].Sub(f.anchorTime)) / float64(f.step)))
	if steps < 1 || steps > maxForecastSteps {
		return 0, errNotEligible
	}

	if err := f.extendPath(steps); err != nil {
		return 0, err
	}
	return f.path[steps-1], nil
}

// extendPath advances the recursive forecast to at least steps points
// past the training run, clipping each prediction to the physical range
// so later predictions recurse on plausible values.
func (f *arForecaster) extendPath(steps int) error {
	buf := make([]float64, len(f.hist), len(f.hist)+steps)
	copy(buf, f.hist)
	buf = append(buf, f.path...)

	for len(f.path) < steps {
		n := len(buf)
		v := f.coefs[0]
		for k := 1; k <= f.order; k++ {
			v += f.coefs[k] * buf[n-k]
		}
		if f.seasonalLag > 0 {
			v += f.coefs[len(f.coefs)-1] * buf[n-f.seasonalLag]
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite forecast", ErrModelFailure)
		}
		v = clamp(v, f.cfg.MinValueMM, f.cfg.MaxValueMM)
		f.path = append(f.path, v)
		buf = append(buf, v)
	}
	return nil
}
