package pipeline

import (
	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// fillFallback fills anything still missing after every other stage.
// Policy median_or_floor uses the global median of labeled points, or the
// configured floor when none exist. Policy fixed_zero fills the constant
// 0.0 (no precipitation). The two policies are mutually exclusive.
func fillFallback(s *domain.Series, prov *Provenance, cfg config.PipelineConfig) {
	if s.MissingCount() == 0 {
		return
	}

	var value float64
	var method string
	switch cfg.FallbackPolicy {
	case config.FallbackFixedZero:
		value = 0.0
		method = domain.MethodZeroFallback
	default:
		labeled := s.LabeledValues()
		if len(labeled) > 0 {
			value = median(labeled)
		} else {
			value = cfg.MinValueMM
		}
		method = domain.MethodGlobalMedian
	}

	for i := range s.Values {
		if s.Missing(i) {
			s.Values[i] = value
			prov.Label(i, method)
		}
	}
}
