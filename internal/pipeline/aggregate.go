package pipeline

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// bucketize collapses the series into fixed-width buckets, stamped at the
// bucket start. The value reduces by max (peak intensity for
// precipitation), quality by mean. Buckets with no raw samples are
// omitted entirely, not materialized as gaps; a bucket whose samples are
// all null stays a missing point. Re-applying to already-bucketed data
// returns the same series.
func bucketize(s *domain.Series, width time.Duration) *domain.Series {
	if width <= 0 || s.Len() == 0 {
		return s
	}

	out := &domain.Series{}
	i := 0
	for i < s.Len() {
		start := s.Times[i].Truncate(width)
		end := start.Add(width)

		maxV := math.NaN()
		var qualities []float64
		j := i
		for ; j < s.Len() && s.Times[j].Before(end); j++ {
			if s.Labeled(j) && (math.IsNaN(maxV) || s.Values[j] > maxV) {
				maxV = s.Values[j]
			}
			if !math.IsNaN(s.Quality[j]) {
				qualities = append(qualities, s.Quality[j])
			}
		}

		q := math.NaN()
		if len(qualities) > 0 {
			q = stat.Mean(qualities, nil)
		}

		out.Times = append(out.Times, start)
		out.Values = append(out.Values, maxV)
		out.Quality = append(out.Quality, q)
		i = j
	}
	return out
}
