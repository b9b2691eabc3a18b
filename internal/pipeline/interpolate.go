package pipeline

import (
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// interpolateTime fills interior gaps linearly on elapsed wall-clock time,
// not sample index. Within a gap, only positions within limit samples of
// the left or right anchor are filled; the middle of an oversized gap is
// left for later stages. Leading and trailing gaps have only one anchor
// and are never interpolated.
func interpolateTime(s *domain.Series, prov *Provenance, limit int) {
	if limit <= 0 {
		return
	}

	prev := -1 // last labeled index seen
	for i := 0; i < s.Len(); i++ {
		if s.Labeled(i) {
			prev = i
			continue
		}
		if prev < 0 {
			continue // leading gap
		}

		// Find the right anchor of this gap.
		next := i + 1
		for next < s.Len() && s.Missing(next) {
			next++
		}
		if next >= s.Len() {
			return // trailing gap
		}

		t0, t1 := s.Times[prev], s.Times[next]
		v0, v1 := s.Values[prev], s.Values[next]
		span := t1.Sub(t0)

		for k := i; k < next; k++ {
			fromLeft := k - prev
			fromRight := next - k
			if fromLeft > limit && fromRight > limit {
				continue
			}
			frac := float64(s.Times[k].Sub(t0)) / float64(span)
			s.Values[k] = v0 + frac*(v1-v0)
			prov.Label(k, domain.MethodTimeInterp)
		}

		prev = next
		i = next
	}
}
