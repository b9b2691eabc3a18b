package domain

import (
	"math"
	"sort"
	"time"
)

// Series is the working buffer for one sensor's cascade run: strictly
// ascending, unique timestamps with nullable values. NaN marks a missing
// point. The series is owned by exactly one pipeline run and is never
// shared across sensors.
type Series struct {
	Times   []time.Time
	Values  []float64
	Quality []float64 // NaN when the source row carried no quality
}

// NewSeries builds a Series from raw rows: sorts by timestamp, collapses
// duplicate timestamps (last row wins), and coerces null or non-finite
// values to missing.
func NewSeries(raws []RawMeasurement) *Series {
	rows := make([]RawMeasurement, len(raws))
	copy(rows, raws)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TS.Before(rows[j].TS) })

	s := &Series{}
	for _, r := range rows {
		ts := r.TS.UTC()
		v := math.NaN()
		if r.Value != nil && !math.IsNaN(*r.Value) && !math.IsInf(*r.Value, 0) {
			v = *r.Value
		}
		q := math.NaN()
		if r.Quality != nil && !math.IsNaN(*r.Quality) {
			q = *r.Quality
		}
		if n := len(s.Times); n > 0 && s.Times[n-1].Equal(ts) {
			s.Values[n-1] = v
			s.Quality[n-1] = q
			continue
		}
		s.Times = append(s.Times, ts)
		s.Values = append(s.Values, v)
		s.Quality = append(s.Quality, q)
	}
	return s
}

func (s *Series) Len() int { return len(s.Times) }

// Missing reports whether point i has no value.
func (s *Series) Missing(i int) bool { return math.IsNaN(s.Values[i]) }

// Labeled reports whether point i has a value (original or filled).
func (s *Series) Labeled(i int) bool { return !math.IsNaN(s.Values[i]) }

// MissingCount returns the number of points without a value.
func (s *Series) MissingCount() int {
	n := 0
	for i := range s.Values {
		if s.Missing(i) {
			n++
		}
	}
	return n
}

// LabeledValues returns a copy of all present values in timestamp order.
func (s *Series) LabeledValues() []float64 {
	out := make([]float64, 0, s.Len())
	for i, v := range s.Values {
		if s.Labeled(i) {
			out = append(out, v)
		}
	}
	return out
}

// FirstLabeled returns the index of the earliest labeled point, or -1.
func (s *Series) FirstLabeled() int {
	for i := range s.Values {
		if s.Labeled(i) {
			return i
		}
	}
	return -1
}

// LastLabeled returns the index of the latest labeled point, or -1.
func (s *Series) LastLabeled() int {
	for i := s.Len() - 1; i >= 0; i-- {
		if s.Labeled(i) {
			return i
		}
	}
	return -1
}

// Step estimates the sampling interval as the median delta between
// consecutive timestamps. Returns 0 for series shorter than two points.
func (s *Series) Step() time.Duration {
	if s.Len() < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		deltas = append(deltas, s.Times[i].Sub(s.Times[i-1]))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return deltas[len(deltas)/2]
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	c := &Series{
		Times:   make([]time.Time, len(s.Times)),
		Values:  make([]float64, len(s.Values)),
		Quality: make([]float64, len(s.Quality)),
	}
	copy(c.Times, s.Times)
	copy(c.Values, s.Values)
	copy(c.Quality, s.Quality)
	return c
}
