package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore keeps invocation records in a Postgres table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and ensures the invocations table
// exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS invocations (
			invocation_id TEXT PRIMARY KEY,
			tool          TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL,
			argv          TEXT[] NOT NULL,
			status        TEXT NOT NULL,
			exit_code     INTEGER NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT '',
			outputs       JSONB,
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocations table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save inserts one invocation record.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	outputsJSON, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (
			invocation_id, tool, image, argv, status,
			exit_code, error, outputs, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.InvocationID,
		rec.Tool,
		rec.Image,
		pq.Array(rec.Argv),
		rec.Status,
		rec.ExitCode,
		rec.Error,
		outputsJSON,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// Get looks up a record by invocation ID.
func (s *PostgresStore) Get(ctx context.Context, invocationID string) (*Record, error) {
	var rec Record
	var outputsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT invocation_id, tool, image, argv, status,
		       exit_code, error, outputs, started_at, finished_at
		FROM invocations WHERE invocation_id = $1
	`, invocationID).Scan(
		&rec.InvocationID,
		&rec.Tool,
		&rec.Image,
		pq.Array(&rec.Argv),
		&rec.Status,
		&rec.ExitCode,
		&rec.Error,
		&outputsJSON,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(outputsJSON) > 0 {
		if err := json.Unmarshal(outputsJSON, &rec.Outputs); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}
