package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
    id          UUID PRIMARY KEY,
    filename    TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    label       TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL,
    leaf_ratio  DOUBLE PRECISION NOT NULL,
    fallback    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
`

// Postgres stores records in a predictions table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, verifies the connection and creates the schema if
// it does not exist.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Add(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO predictions
        (id, filename, outcome, label, confidence, leaf_ratio, fallback, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Filename, r.Outcome, r.Label, r.Confidence, r.LeafRatio, r.Fallback, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store prediction: %w", err)
	}
	return nil
}

func (s *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, outcome, label, confidence, leaf_ratio, fallback, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Filename, &r.Outcome, &r.Label,
			&r.Confidence, &r.LeafRatio, &r.Fallback, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
