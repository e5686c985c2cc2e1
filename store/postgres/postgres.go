// Package postgres implements bioinfoflow.StatusStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewislovelock/bioinfoflow"
)

// Store implements bioinfoflow.StatusStore backed by PostgreSQL,
// mirroring run/step status transitions into runs/steps rows.
type Store struct {
	pool *pgxpool.Pool
}

var _ bioinfoflow.StatusStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool. The caller owns
// the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the runs and steps tables. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			workflow_version TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			finished_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time BIGINT,
			end_time BIGINT,
			duration_seconds DOUBLE PRECISION,
			exit_code INTEGER,
			error TEXT,
			outputs JSONB,
			PRIMARY KEY (run_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

func (s *Store) RecordRunStart(ctx context.Context, run *bioinfoflow.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, workflow_name, workflow_version, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   workflow_name = EXCLUDED.workflow_name,
		   workflow_version = EXCLUDED.workflow_version,
		   status = EXCLUDED.status,
		   created_at = EXCLUDED.created_at`,
		run.ID, run.WorkflowName, run.WorkflowVersion, string(run.Status), run.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("postgres: record run start: %w", err)
	}
	return nil
}

func (s *Store) RecordStepTransition(ctx context.Context, runID, step string, state bioinfoflow.StepState) error {
	var startUnix, endUnix *int64
	if state.StartTime != nil {
		v := state.StartTime.Unix()
		startUnix = &v
	}
	if state.EndTime != nil {
		v := state.EndTime.Unix()
		endUnix = &v
	}
	var outputsJSON []byte
	if state.Outputs != nil {
		data, err := json.Marshal(state.Outputs.Files)
		if err != nil {
			return fmt.Errorf("postgres: marshal step outputs: %w", err)
		}
		outputsJSON = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO steps (run_id, name, status, start_time, end_time, duration_seconds, exit_code, error, outputs)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		 ON CONFLICT (run_id, name) DO UPDATE SET
		   status = EXCLUDED.status,
		   start_time = EXCLUDED.start_time,
		   end_time = EXCLUDED.end_time,
		   duration_seconds = EXCLUDED.duration_seconds,
		   exit_code = EXCLUDED.exit_code,
		   error = EXCLUDED.error,
		   outputs = EXCLUDED.outputs`,
		runID, step, string(state.Status), startUnix, endUnix, state.Duration, state.ExitCode, nullIfEmpty(state.Error), outputsJSON)
	if err != nil {
		return fmt.Errorf("postgres: record step transition: %w", err)
	}
	return nil
}

func (s *Store) RecordRunFinish(ctx context.Context, runID string, status bioinfoflow.RunStatus, finishedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2 WHERE id = $3`,
		string(status), finishedAt.Unix(), runID)
	if err != nil {
		return fmt.Errorf("postgres: record run finish: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
