package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// Gradient-boosted trees trainer settings not exposed as configuration.
// Round count and leaf size are sized for the small per-sensor training
// sets a lookback window yields.
const (
	gbmEstimators = 100
	gbmMinLeaf    = 5
	gbmSubsample  = 0.8
)

// Feature vector layout for the regression strategy.
const (
	featLag1 = iota
	featLag2
	featLag3
	featHour
	featDOW
	featMonth
	featCount
)

// gbmForecaster is the regression strategy: gradient-boosted trees over
// three lag values plus calendar features. Features are built from a
// snapshot of the series taken at fit time, so a point filled mid-round
// does not make its lag dependents eligible until the next refit; each
// round of the refit loop in runForecast unlocks at most one more step
// into a gap run, and the iteration budget bounds how deep a run fills.
type gbmForecaster struct {
	cfg   config.PipelineConfig
	model *gbtEnsemble
	vals  []float64 // series values as of the last Fit
}

func newGBMForecaster(cfg config.PipelineConfig) *gbmForecaster {
	return &gbmForecaster{cfg: cfg}
}

func (f *gbmForecaster) Method() string { return domain.MethodGBMForecast }

// Fit trains on every point with a present label and all three lags
// present, using the current (partially filled) series state.
func (f *gbmForecaster) Fit(s *domain.Series) error {
	f.vals = append(f.vals[:0], s.Values...)

	var x [][]float64
	var y []float64
	for i := 0; i < s.Len(); i++ {
		if s.Missing(i) {
			continue
		}
		row := featureRow(s.Times, f.vals, i)
		if lagsMissing(row) {
			continue
		}
		x = append(x, row)
		y = append(y, s.Values[i])
	}
	if len(y) < f.cfg.GBM.MinTrain {
		return ErrInsufficientData
	}

	model, err := trainGBT(x, y, gbtOptions{
		maxDepth:   f.cfg.GBM.MaxDepth,
		learnRate:  f.cfg.GBM.LearningRate,
		estimators: gbmEstimators,
		seed:       f.cfg.GBM.Seed,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelFailure, err)
	}
	f.model = model
	return nil
}

// Predict fills the missing point at index i when all three lags were
// present when the model was fitted.
func (f *gbmForecaster) Predict(s *domain.Series, i int) (float64, error) {
	row := featureRow(s.Times, f.vals, i)
	if lagsMissing(row) {
		return 0, errNotEligible
	}
	v := f.model.predict(row)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrModelFailure
	}
	return clamp(v, f.cfg.MinValueMM, f.cfg.MaxValueMM), nil
}

// featureRow builds the feature vector for point i from the given value
// snapshot. Unavailable lags are NaN.
func featureRow(times []time.Time, values []float64, i int) []float64 {
	row := make([]float64, featCount)
	for k := 1; k <= 3; k++ {
		row[k-1] = math.NaN()
		if i-k >= 0 {
			row[k-1] = values[i-k]
		}
	}
	row[featHour] = float64(times[i].Hour())
	row[featDOW] = float64(times[i].Weekday())
	row[featMonth] = float64(times[i].Month())
	return row
}

func lagsMissing(row []float64) bool {
	return math.IsNaN(row[featLag1]) || math.IsNaN(row[featLag2]) || math.IsNaN(row[featLag3])
}

// --- gradient-boosted trees ---

type gbtOptions struct {
	maxDepth   int
	learnRate  float64
	estimators int
	seed       int64
}

// gbtEnsemble is a squared-loss gradient boosting ensemble: a base
// prediction plus learnRate-scaled residual trees.
type gbtEnsemble struct {
	base      float64
	learnRate float64
	trees     []*gbtNode
}

func (m *gbtEnsemble) predict(row []float64) float64 {
	v := m.base
	for _, t := range m.trees {
		v += m.learnRate * t.predict(row)
	}
	return v
}

type gbtNode struct {
	feature   int
	threshold float64
	left      *gbtNode
	right     *gbtNode
	value     float64
}

func (n *gbtNode) predict(row []float64) float64 {
	for n.left != nil {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// trainGBT fits boosted regression trees with row subsampling. Training is
// deterministic for a fixed seed, which keeps repeated cleaning runs
// byte-identical.
func trainGBT(x [][]float64, y []float64, opts gbtOptions) (*gbtEnsemble, error) {
	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("empty training set")
	}

	m := &gbtEnsemble{base: mean(y), learnRate: opts.learnRate}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.base
	}

	rng := rand.New(rand.NewSource(opts.seed))
	resid := make([]float64, n)
	sampleSize := int(gbmSubsample * float64(n))
	if sampleSize < 1 {
		sampleSize = n
	}

	for e := 0; e < opts.estimators; e++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}

		idx := rng.Perm(n)[:sampleSize]
		sort.Ints(idx)

		tree := buildTree(x, resid, idx, opts.maxDepth)
		m.trees = append(m.trees, tree)
		for i := range pred {
			pred[i] += opts.learnRate * tree.predict(x[i])
		}
	}
	return m, nil
}

// buildTree grows a depth-limited regression tree by best-first variance
// reduction over all features.
func buildTree(x [][]float64, target []float64, idx []int, depth int) *gbtNode {
	node := &gbtNode{value: meanAt(target, idx)}
	if depth <= 0 || len(idx) < 2*gbmMinLeaf {
		return node
	}

	feature, threshold, ok := bestSplit(x, target, idx)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < gbmMinLeaf || len(right) < gbmMinLeaf {
		return node
	}

	node.feature = feature
	node.threshold = threshold
	node.left = buildTree(x, target, left, depth-1)
	node.right = buildTree(x, target, right, depth-1)
	return node
}

// bestSplit scans every feature for the split maximizing the squared-error
// reduction, honoring the minimum leaf size.
func bestSplit(x [][]float64, target []float64, idx []int) (int, float64, bool) {
	var sum, sumSq float64
	for _, i := range idx {
		sum += target[i]
		sumSq += target[i] * target[i]
	}
	n := float64(len(idx))
	parentSSE := sumSq - sum*sum/n

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0

	order := make([]int, len(idx))
	for f := 0; f < featCount; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		var sumL, sumSqL float64
		for p := 1; p < len(order); p++ {
			t := target[order[p-1]]
			sumL += t
			sumSqL += t * t
			if p < gbmMinLeaf || len(order)-p < gbmMinLeaf {
				continue
			}
			lo, hi := x[order[p-1]][f], x[order[p]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(p), float64(len(order)-p)
			sumR, sumSqR := sum-sumL, sumSq-sumSqL
			sseL := sumSqL - sumL*sumL/nl
			sseR := sumSqR - sumR*sumR/nr
			gain := parentSSE - sseL - sseR
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (lo + hi) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanAt(vals []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += vals[i]
	}
	return sum / float64(len(idx))
}
