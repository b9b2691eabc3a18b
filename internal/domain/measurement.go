package domain

import "time"

// QC flag bits. Flags accumulate per point and are never cleared.
const (
	FlagOutlier     int32 = 1 // value outside the physical range, nulled before imputation
	FlagImputed     int32 = 2 // value synthesized by a gap-filling stage
	FlagPoorQuality int32 = 4 // input quality below the configured minimum, nulled
)

// Imputation method labels. A point carries at most one label, set by the
// first cascade stage that fills it.
const (
	MethodARIMAForecast = "arima_forecast"
	MethodGBMForecast   = "gbm_forecast"
	MethodTimeInterp    = "time_interp"
	MethodHourMedian    = "hour_median"
	MethodGlobalMedian  = "global_median"
	MethodZeroFallback  = "zero_fallback"
)

// CleanVersion tags the current cleaning methodology generation. Rows are
// upserted on (sensor_id, ts, version), so a future methodology can coexist
// with this one under a different version.
const CleanVersion = 1

// RawMeasurement is one sensor sample as stored in raw_measurements.
// Value and Quality are pointers because the store may hold nulls; a nil
// Value is a gap from the start.
type RawMeasurement struct {
	SensorID string    `json:"sensor_id"`
	TS       time.Time `json:"ts"`
	Value    *float64  `json:"value_mm"`
	Quality  *float64  `json:"quality"`
	Variable string    `json:"variable"`
	Source   string    `json:"source"`
}

// CleanMeasurement is one cleaned, versioned output row.
type CleanMeasurement struct {
	SensorID         string    `json:"sensor_id"`
	TS               time.Time `json:"ts"`
	ValueMM          float64   `json:"value_mm"`
	QCFlags          int32     `json:"qc_flags"`
	ImputationMethod *string   `json:"imputation_method"`
	Version          int       `json:"version"`
}

// Imputed reports whether the row's value was synthesized.
func (m CleanMeasurement) Imputed() bool {
	return m.QCFlags&FlagImputed != 0
}
