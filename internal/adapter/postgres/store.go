// Package postgres implements the raw/clean measurement store on a pgx
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// Raw rows are joined against clean storage so timestamps already cleaned
// at the current version are not reprocessed.
const fetchRawSinceSQL = `
SELECT rm.sensor_id, rm.ts, rm.value_mm, rm.quality, rm.variable, rm.source
FROM raw_measurements rm
LEFT JOIN clean_measurements cm
  ON cm.sensor_id = rm.sensor_id
 AND cm.ts = rm.ts
 AND cm.version = $1
WHERE rm.ts >= $2
  AND cm.sensor_id IS NULL
  AND rm.variable = $3
ORDER BY rm.sensor_id, rm.ts
`

const fetchRawRangeSQL = `
SELECT rm.sensor_id, rm.ts, rm.value_mm, rm.quality, rm.variable, rm.source
FROM raw_measurements rm
WHERE rm.ts >= $1
  AND rm.ts < $2
  AND rm.variable = $3
ORDER BY rm.sensor_id, rm.ts
`

const upsertCleanSQL = `
INSERT INTO clean_measurements (sensor_id, ts, value_mm, qc_flags, imputation_method, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (sensor_id, ts, version) DO UPDATE
SET value_mm = EXCLUDED.value_mm,
    qc_flags = EXCLUDED.qc_flags,
    imputation_method = EXCLUDED.imputation_method,
    updated_at = NOW()
`

// Store provides measurement access backed by a pgx pool.
type Store struct {
	pool     *pgxpool.Pool
	variable string
}

// New connects a Store for the given variable (e.g. "precipitacion").
func New(ctx context.Context, databaseURL, variable string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, variable: variable}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FetchRawSince returns ordered raw rows at or after since, excluding
// timestamps already present in clean storage at the current version.
func (s *Store) FetchRawSince(ctx context.Context, since time.Time) ([]domain.RawMeasurement, error) {
	rows, err := s.pool.Query(ctx, fetchRawSinceSQL, domain.CleanVersion, since, s.variable)
	if err != nil {
		return nil, fmt.Errorf("query raw measurements: %w", err)
	}
	defer rows.Close()
	return scanRaw(rows)
}

// FetchRawRange returns ordered raw rows in [from, to), without the
// already-clean exclusion. Used by backfill, where existing clean rows are
// intentionally recomputed.
func (s *Store) FetchRawRange(ctx context.Context, from, to time.Time) ([]domain.RawMeasurement, error) {
	rows, err := s.pool.Query(ctx, fetchRawRangeSQL, from, to, s.variable)
	if err != nil {
		return nil, fmt.Errorf("query raw range: %w", err)
	}
	defer rows.Close()
	return scanRaw(rows)
}

// RawTimeBounds returns the earliest and latest raw timestamps for the
// configured variable. ok is false when no rows exist.
func (s *Store) RawTimeBounds(ctx context.Context) (min, max time.Time, ok bool, err error) {
	var minPtr, maxPtr *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT MIN(ts), MAX(ts) FROM raw_measurements WHERE variable = $1`,
		s.variable,
	).Scan(&minPtr, &maxPtr)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query raw bounds: %w", err)
	}
	if minPtr == nil || maxPtr == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return *minPtr, *maxPtr, true, nil
}

// UpsertClean writes clean rows in one batch, last-write-wins on
// (sensor_id, ts, version), and returns the affected row count.
func (s *Store) UpsertClean(ctx context.Context, rows []domain.CleanMeasurement) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertCleanSQL, r.SensorID, r.TS, r.ValueMM, r.QCFlags, r.ImputationMethod, r.Version)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	var affected int64
	for range rows {
		tag, err := res.Exec()
		if err != nil {
			return affected, fmt.Errorf("upsert clean measurement: %w", err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

func scanRaw(rows pgx.Rows) ([]domain.RawMeasurement, error) {
	out := make([]domain.RawMeasurement, 0)
	for rows.Next() {
		var m domain.RawMeasurement
		if err := rows.Scan(&m.SensorID, &m.TS, &m.Value, &m.Quality, &m.Variable, &m.Source); err != nil {
			return nil, fmt.Errorf("scan raw measurement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw measurements: %w", err)
	}
	return out, nil
}
