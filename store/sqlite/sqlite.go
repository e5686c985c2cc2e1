// Package sqlite implements bioinfoflow.StatusStore using pure-Go
// SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lewislovelock/bioinfoflow"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the
// store emits debug logs for every mirrored transition. If not set, no
// logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements bioinfoflow.StatusStore backed by a local SQLite
// file, mirroring run/step status transitions into runs and steps
// tables (workflow name and version are columns of runs).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ bioinfoflow.StatusStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections —
// the same concern the executor's own concurrent step dispatch raises
// for this store.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the runs and steps tables. Safe to call multiple
// times.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			workflow_version TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER,
			end_time INTEGER,
			duration_seconds REAL,
			exit_code INTEGER,
			error TEXT,
			outputs TEXT,
			PRIMARY KEY (run_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordRunStart(ctx context.Context, run *bioinfoflow.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_name, workflow_version, status, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   workflow_name = excluded.workflow_name,
		   workflow_version = excluded.workflow_version,
		   status = excluded.status,
		   created_at = excluded.created_at`,
		run.ID, run.WorkflowName, run.WorkflowVersion, string(run.Status), run.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: record run start: %w", err)
	}
	s.logger.Debug("sqlite: run start recorded", "run_id", run.ID)
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
	var outputsJSON *string
	if state.Outputs != nil {
		data, err := json.Marshal(state.Outputs.Files)
		if err != nil {
			return fmt.Errorf("sqlite: marshal step outputs: %w", err)
		}
		v := string(data)
		outputsJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, name, status, start_time, end_time, duration_seconds, exit_code, error, outputs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET
		   status = excluded.status,
		   start_time = excluded.start_time,
		   end_time = excluded.end_time,
		   duration_seconds = excluded.duration_seconds,
		   exit_code = excluded.exit_code,
		   error = excluded.error,
		   outputs = excluded.outputs`,
		runID, step, string(state.Status), startUnix, endUnix, state.Duration, state.ExitCode, nullIfEmpty(state.Error), outputsJSON)
	if err != nil {
		return fmt.Errorf("sqlite: record step transition: %w", err)
	}
	s.logger.Debug("sqlite: step transition recorded", "run_id", runID, "step", step, "status", state.Status)
	return nil
}

func (s *Store) RecordRunFinish(ctx context.Context, runID string, status bioinfoflow.RunStatus, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), finishedAt.Unix(), runID)
	if err != nil {
		return fmt.Errorf("sqlite: record run finish: %w", err)
	}
	s.logger.Debug("sqlite: run finish recorded", "run_id", runID, "status", status)
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
