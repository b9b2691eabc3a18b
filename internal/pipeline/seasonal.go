package pipeline

import (
	"sort"

	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// fillHourMedian fills still-missing points with the median of labeled
// values sharing the same hour of day, computed from the series state
// after all earlier stages. Hours with no labeled values stay unfilled;
// with no labeled data at all the stage is a no-op.
func fillHourMedian(s *domain.Series, prov *Provenance) {
	var byHour [24][]float64
	for i := range s.Values {
		if s.Labeled(i) {
			h := s.Times[i].Hour()
			byHour[h] = append(byHour[h], s.Values[i])
		}
	}

	var medians [24]float64
	var defined [24]bool
	for h := range byHour {
		if len(byHour[h]) > 0 {
			medians[h] = median(byHour[h])
			defined[h] = true
		}
	}

	for i := range s.Values {
		if s.Labeled(i) {
			continue
		}
		h := s.Times[i].Hour()
		if !defined[h] {
			continue
		}
		s.Values[i] = medians[h]
		prov.Label(i, domain.MethodHourMedian)
	}
}

// median returns the middle value, averaging the central pair for even
// lengths. Panics on empty input; callers guard.
func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
