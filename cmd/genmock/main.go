// Command genmock generates a deterministic synthetic raw-measurement
// fixture for local development and test tooling: plausible precipitation
// values with injected gaps, out-of-range spikes, and poor-quality points.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/raw_measurements.json \
//	  -sensors 3 -hours 96 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

var baseTime = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the raw JSON fixture")
	sensors := flag.Int("sensors", 3, "number of sensors to generate")
	hours := flag.Int("hours", 96, "hours of hourly samples per sensor")
	seed := flag.Int64("seed", 42, "rng seed for reproducible fixtures")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))
	var rows []domain.RawMeasurement

	for s := 0; s < *sensors; s++ {
		sensorID := fmt.Sprintf("SENSOR_%03d", s+1)
		for h := 0; h < *hours; h++ {
			ts := baseTime.Add(time.Duration(h) * time.Hour)
			row := domain.RawMeasurement{
				SensorID: sensorID,
				TS:       ts,
				Variable: "precipitacion",
				Source:   "mock",
			}

			switch roll := rng.Float64(); {
			case roll < 0.08:
				// Gap: value stays null.
			case roll < 0.11:
				spike := 200.0 + rng.Float64()*100
				row.Value = &spike
			case roll < 0.14:
				v := rng.ExpFloat64() * 2
				q := 0.2 + rng.Float64()*0.3 // below usual quality thresholds
				row.Value = &v
				row.Quality = &q
			default:
				v := rng.ExpFloat64() * 2
				q := 0.9 + rng.Float64()*0.1
				row.Value = &v
				row.Quality = &q
			}
			rows = append(rows, row)
		}
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}

	log.Printf("wrote %d raw rows for %d sensors to %s", len(rows), *sensors, *out)
	return nil
}
