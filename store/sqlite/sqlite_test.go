package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestRecordRunStartAndFinish(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := &bioinfoflow.Run{
		ID:              "run-001",
		WorkflowName:    "align",
		WorkflowVersion: "1.0.0",
		Status:          bioinfoflow.RunRunning,
		CreatedAt:       time.Unix(1000, 0),
	}
	if err := s.RecordRunStart(ctx, run); err != nil {
		t.Fatalf("RecordRunStart: %v", err)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, run.ID).Scan(&status); err != nil {
		t.Fatalf("query run: %v", err)
	}
	if status != "RUNNING" {
		t.Errorf("expected RUNNING, got %s", status)
	}

	finishedAt := time.Unix(2000, 0)
	if err := s.RecordRunFinish(ctx, run.ID, bioinfoflow.RunCompleted, finishedAt); err != nil {
		t.Fatalf("RecordRunFinish: %v", err)
	}

	var finished int64
	if err := s.db.QueryRowContext(ctx, `SELECT finished_at FROM runs WHERE id = ?`, run.ID).Scan(&finished); err != nil {
		t.Fatalf("query finished run: %v", err)
	}
	if finished != finishedAt.Unix() {
		t.Errorf("expected finished_at %d, got %d", finishedAt.Unix(), finished)
	}
}

func TestRecordStepTransitionUpsertsOnRerun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	running := bioinfoflow.StepState{Status: bioinfoflow.StepRunning, StartTime: &start}
	if err := s.RecordStepTransition(ctx, "run-1", "align", running); err != nil {
		t.Fatalf("RecordStepTransition (running): %v", err)
	}

	end := time.Unix(1010, 0)
	duration := 10.0
	exitCode := 0
	completed := bioinfoflow.StepState{
		Status:    bioinfoflow.StepCompleted,
		StartTime: &start,
		EndTime:   &end,
		Duration:  &duration,
		ExitCode:  &exitCode,
		Outputs:   &bioinfoflow.StepOutputs{Files: []string{"out.bam"}},
	}
	if err := s.RecordStepTransition(ctx, "run-1", "align", completed); err != nil {
		t.Fatalf("RecordStepTransition (completed): %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE run_id = ? AND name = ?`, "run-1", "align").Scan(&count); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one row per (run_id, name), got %d", count)
	}

	var status, outputs string
	if err := s.db.QueryRowContext(ctx, `SELECT status, outputs FROM steps WHERE run_id = ? AND name = ?`, "run-1", "align").Scan(&status, &outputs); err != nil {
		t.Fatalf("query step: %v", err)
	}
	if status != "COMPLETED" {
		t.Errorf("expected COMPLETED, got %s", status)
	}
	if outputs != `["out.bam"]` {
		t.Errorf("expected [\"out.bam\"], got %s", outputs)
	}
}
