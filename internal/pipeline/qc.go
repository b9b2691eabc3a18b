package pipeline

import (
	"math"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// applyQC nulls disqualified points and records why. Out-of-range values
// are flagged OUTLIER; values whose quality is below the configured
// minimum are flagged POOR_QUALITY. Unknown quality passes the check.
func applyQC(s *domain.Series, prov *Provenance, cfg config.PipelineConfig) {
	for i := range s.Values {
		if s.Labeled(i) && (s.Values[i] < cfg.MinValueMM || s.Values[i] > cfg.MaxValueMM) {
			s.Values[i] = math.NaN()
			prov.SetFlag(i, domain.FlagOutlier)
		}
		if cfg.MinQuality == nil {
			continue
		}
		if !math.IsNaN(s.Quality[i]) && s.Quality[i] < *cfg.MinQuality {
			s.Values[i] = math.NaN()
			prov.SetFlag(i, domain.FlagPoorQuality)
		}
	}
}
