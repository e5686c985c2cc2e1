package bioinfoflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunStatus is the aggregate status of a Run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// statusTxt renders the one-word, lowercase form written to status.txt.
// The source material this engine follows inconsistently mixes
// lowercase status.txt values with uppercase journal enum values;
// §9 directs implementers to stabilize on lowercase for status.txt and
// uppercase for the journal, which is what statusTxt/StepStatus do.
func (s RunStatus) statusTxt() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return "running"
	}
}

// Run is one execution attempt of a Workflow: a run_id, a workspace
// directory, input overrides, and a StepState per step. The Run owns its
// StepState map and workspace directory for the lifetime of the
// execution attempt; derived artifacts outlive the in-memory Run.
type Run struct {
	ID              string
	WorkflowName    string
	WorkflowVersion string
	CreatedAt       time.Time
	FinishedAt      *time.Time
	Status          RunStatus
	InputOverrides  map[string]string
	Dir             string

	mu    sync.Mutex
	steps map[string]*StepState
}

// Workspace materializes and owns the on-disk layout for one run:
// <base>/runs/<workflow>/<version>/<run_id>/{inputs,outputs,logs,tmp},
// a copy of the source workflow document, and the status journal
// (step_status.json + status.txt).
type Workspace struct {
	BaseDir string
	Run     *Run

	journalMu sync.Mutex
}

// NewWorkspace materializes the directory tree for a new run of wf and
// returns the Workspace plus its Run, with every step initialized to
// PENDING. All mkdir calls are idempotent (mkdir -p semantics).
func NewWorkspace(wf *Workflow, baseDir string, inputOverrides map[string]string, now time.Time) (*Workspace, error) {
	runID := GenerateRunID(now)
	runDir := filepath.Join(baseDir, wf.Config.Runs, wf.Name, wf.Version, runID)

	for _, sub := range []string{"inputs", "outputs", "logs", "tmp"} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o750); err != nil {
			return nil, &SetupError{Stage: "workspace", Message: "create " + sub, Cause: err}
		}
	}
	for _, sibling := range []string{wf.Config.Refs, wf.Config.Workflows} {
		if err := os.MkdirAll(filepath.Join(baseDir, sibling), 0o750); err != nil {
			return nil, &SetupError{Stage: "workspace", Message: "create " + sibling, Cause: err}
		}
	}

	run := &Run{
		ID:              runID,
		WorkflowName:    wf.Name,
		WorkflowVersion: wf.Version,
		CreatedAt:       now,
		Status:          RunRunning,
		InputOverrides:  inputOverrides,
		Dir:             runDir,
		steps:           make(map[string]*StepState, len(wf.Steps)),
	}
	for name := range wf.Steps {
		run.steps[name] = &StepState{Status: StepPending}
	}

	ws := &Workspace{BaseDir: baseDir, Run: run}

	if err := ws.saveWorkflowCopy(wf); err != nil {
		return nil, err
	}
	if err := ws.WriteJournal(); err != nil {
		return nil, err
	}
	return ws, nil
}

// saveWorkflowCopy writes the source document to <run>/workflow.yaml.
func (ws *Workspace) saveWorkflowCopy(wf *Workflow) error {
	path := filepath.Join(ws.Run.Dir, "workflow.yaml")
	if err := os.WriteFile(path, wf.Source(), 0o640); err != nil {
		return &SetupError{Stage: "workspace", Message: "save workflow copy", Cause: err}
	}
	return nil
}

// StepState returns a copy of the current state for step, or false if
// step is unknown.
func (r *Run) StepState(step string) (StepState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[step]
	if !ok {
		return StepState{}, false
	}
	return s.clone(), true
}

// SetStepState replaces the state for step.
func (r *Run) SetStepState(step string, s StepState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step] = &s
}

// AggregateStatus computes the run-level status from step states
// following §4.6's rule: RUNNING while any step is PENDING or RUNNING;
// FAILED once any step is in a failing terminal state; COMPLETED once
// every step is COMPLETED (or SKIPPED).
func (r *Run) AggregateStatus() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	anyFailed := false
	anyActive := false
	for _, s := range r.steps {
		if s.Status.Failed() {
			anyFailed = true
		}
		if s.Status == StepPending || s.Status == StepRunning {
			anyActive = true
		}
	}
	switch {
	case anyFailed:
		return RunFailed
	case anyActive:
		return RunRunning
	default:
		return RunCompleted
	}
}

// snapshotSteps returns a stable copy of all step states for
// serialization, guarded the same way StepState/SetStepState are.
func (r *Run) snapshotSteps() map[string]StepState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StepState, len(r.steps))
	for name, s := range r.steps {
		out[name] = s.clone()
	}
	return out
}

// WriteJournal atomically writes step_status.json (serialize, write to a
// temp file in the same directory, rename into place) and status.txt,
// guarded by a journal-write mutex so a reader after any transition
// observes that transition and all preceding ones.
func (ws *Workspace) WriteJournal() error {
	ws.journalMu.Lock()
	defer ws.journalMu.Unlock()

	ws.Run.Status = ws.Run.AggregateStatus()

	steps := ws.Run.snapshotSteps()
	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal step_status.json: %w", err)
	}
	if err := atomicWrite(filepath.Join(ws.Run.Dir, "step_status.json"), data); err != nil {
		return err
	}

	statusLine := []byte(ws.Run.Status.statusTxt() + "\n")
	if err := atomicWrite(filepath.Join(ws.Run.Dir, "status.txt"), statusLine); err != nil {
		return err
	}
	return nil
}

// atomicWrite writes data to a temp file beside path and renames it into
// place, so readers never observe a partially-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into %s: %w", path, err)
	}
	return nil
}

// PurgeTemp empties <tmp>/ (recursive delete + remake), called once all
// steps are terminal in a successful run.
func (ws *Workspace) PurgeTemp() error {
	tmpDir := filepath.Join(ws.Run.Dir, "tmp")
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("purge tmp: %w", err)
	}
	return os.MkdirAll(tmpDir, 0o750)
}

// Finish sets the run's terminal time and final aggregate status,
// journaling the result.
func (ws *Workspace) Finish(now time.Time) error {
	ws.Run.FinishedAt = &now
	return ws.WriteJournal()
}
