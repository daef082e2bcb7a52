// Package archive keeps a durable record of every accepted location fix.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/SUF145/call-geo/internal/location"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS location_fixes (
	id                  BIGSERIAL PRIMARY KEY,
	callback_handle     BIGINT NOT NULL,
	latitude            DOUBLE PRECISION NOT NULL,
	longitude           DOUBLE PRECISION NOT NULL,
	accuracy            DOUBLE PRECISION NOT NULL,
	altitude            DOUBLE PRECISION NOT NULL,
	speed               DOUBLE PRECISION NOT NULL,
	fix_time            TIMESTAMPTZ NOT NULL,
	potentially_spoofed BOOLEAN NOT NULL DEFAULT FALSE,
	spoofing_reasons    TEXT[] NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS location_fixes_fix_time_idx ON location_fixes (fix_time DESC);
`

// Record is one archived fix.
type Record struct {
	CallbackHandle int64                   `json:"callback_handle"`
	Fix            location.Fix            `json:"fix"`
	Spoofing       location.SpoofingResult `json:"spoofing"`
}

type Archive interface {
	Store(ctx context.Context, rec Record) error
}

// DBTX is the subset of pgxpool.Pool used by the archive.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresArchive struct {
	db DBTX
}

func NewPostgresArchive(db DBTX) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// Connect opens a pool and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create location_fixes: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Store(ctx context.Context, rec Record) error {
	reasons := make([]string, 0, len(rec.Spoofing.Reasons))
	for _, r := range rec.Spoofing.Reasons {
		reasons = append(reasons, string(r))
	}

	f := rec.Fix
	_, err := a.db.Exec(ctx, `
		INSERT INTO location_fixes (
			callback_handle, latitude, longitude, accuracy, altitude, speed,
			fix_time, potentially_spoofed, spoofing_reasons
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.CallbackHandle, f.Latitude, f.Longitude, f.Accuracy, f.Altitude, f.Speed,
		f.Time().UTC(), rec.Spoofing.Detected, reasons)
	if err != nil {
		return fmt.Errorf("failed to archive fix: %w", err)
	}
	return nil
}

// Recent returns the newest archived fixes first.
func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := a.db.Query(ctx, `
		SELECT callback_handle, latitude, longitude, accuracy, altitude, speed,
		       fix_time, potentially_spoofed, spoofing_reasons
		FROM location_fixes
		ORDER BY fix_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query location_fixes: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec     Record
			fixTime time.Time
			reasons []string
		)
		if err := rows.Scan(
			&rec.CallbackHandle, &rec.Fix.Latitude, &rec.Fix.Longitude, &rec.Fix.Accuracy,
			&rec.Fix.Altitude, &rec.Fix.Speed, &fixTime, &rec.Spoofing.Detected, &reasons,
		); err != nil {
			return nil, fmt.Errorf("failed to scan location fix: %w", err)
		}
		rec.Fix.Timestamp = fixTime.UnixMilli()
		for _, r := range reasons {
			rec.Spoofing.Reasons = append(rec.Spoofing.Reasons, location.SpoofingReason(r))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
