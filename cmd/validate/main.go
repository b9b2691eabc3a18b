// Command validate checks a clean-measurement JSON fixture against the
// pipeline's output invariants: values inside the physical range, the
// IMPUTED flag set exactly when a method label is present, known labels,
// the expected version, and strictly ascending unique timestamps per
// sensor.
//
// Usage:
//
//	go run ./cmd/validate -clean-json data/mock/clean_measurements.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

var knownMethods = map[string]bool{
	domain.MethodARIMAForecast: true,
	domain.MethodGBMForecast:   true,
	domain.MethodTimeInterp:    true,
	domain.MethodHourMedian:    true,
	domain.MethodGlobalMedian:  true,
	domain.MethodZeroFallback:  true,
}

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func main() {
	cleanJSON := flag.String("clean-json", "", "path to a clean measurements JSON fixture")
	minMM := flag.Float64("min-mm", 0.0, "lower physical bound")
	maxMM := flag.Float64("max-mm", 150.0, "upper physical bound")
	flag.Parse()

	if *cleanJSON == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*cleanJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read fixture: %v\n", err)
		os.Exit(1)
	}
	var rows []domain.CleanMeasurement
	if err := json.Unmarshal(data, &rows); err != nil {
		fmt.Fprintf(os.Stderr, "parse fixture: %v\n", err)
		os.Exit(1)
	}

	phases := []*phase{
		checkRange(rows, *minMM, *maxMM),
		checkProvenance(rows),
		checkOrdering(rows),
	}

	failed := false
	for _, p := range phases {
		if len(p.errors) == 0 {
			fmt.Printf("PASS %s\n", p.name)
			continue
		}
		failed = true
		fmt.Printf("FAIL %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("checked %d rows\n", len(rows))
	if failed {
		os.Exit(1)
	}
}

func checkRange(rows []domain.CleanMeasurement, minMM, maxMM float64) *phase {
	p := &phase{name: "value range"}
	for _, r := range rows {
		if r.ValueMM < minMM || r.ValueMM > maxMM {
			p.errorf("%s@%s: value %.3f outside [%.1f, %.1f]", r.SensorID, r.TS, r.ValueMM, minMM, maxMM)
		}
	}
	return p
}

func checkProvenance(rows []domain.CleanMeasurement) *phase {
	p := &phase{name: "flags and labels"}
	for _, r := range rows {
		if r.Imputed() != (r.ImputationMethod != nil) {
			p.errorf("%s@%s: IMPUTED flag and imputation_method disagree", r.SensorID, r.TS)
		}
		if r.ImputationMethod != nil && !knownMethods[*r.ImputationMethod] {
			p.errorf("%s@%s: unknown imputation method %q", r.SensorID, r.TS, *r.ImputationMethod)
		}
		if r.Version != domain.CleanVersion {
			p.errorf("%s@%s: unexpected version %d", r.SensorID, r.TS, r.Version)
		}
	}
	return p
}

func checkOrdering(rows []domain.CleanMeasurement) *phase {
	p := &phase{name: "timestamp ordering"}
	last := map[string]domain.CleanMeasurement{}
	for _, r := range rows {
		if prev, ok := last[r.SensorID]; ok && !prev.TS.Before(r.TS) {
			p.errorf("%s: timestamp %s not after %s", r.SensorID, r.TS, prev.TS)
		}
		last[r.SensorID] = r
	}
	return p
}
