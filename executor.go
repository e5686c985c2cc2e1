package bioinfoflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lewislovelock/bioinfoflow/container"
)

// ExecutorOptions parameterizes one Execute call per §4.6.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent step dispatch. 1 runs the
	// topological order sequentially; values > 1 drive a ready-set loop
	// against a worker pool of this size.
	MaxParallel int
	// EnableTimeLimits turns the global time-limit switch on. When true,
	// a step with no time_limit of its own receives DefaultTimeLimit;
	// when false, every step's time_limit is stripped regardless of
	// what the document declares.
	EnableTimeLimits bool
	DefaultTimeLimit string
	// Tracer instruments workflow/step/container spans. Nil disables
	// tracing entirely.
	Tracer Tracer
	// Metrics records step/run counts and durations. Nil disables
	// metrics entirely.
	Metrics Metrics
	// Store mirrors run/step transitions into a relational store. Nil
	// disables mirroring entirely; the Executor never requires one.
	Store StatusStore
	// Logger receives structured lifecycle events: step dispatch, step
	// terminal status, image pull, timeout kill, journal write failure.
	// Nil defaults to a text logger on stderr.
	Logger *slog.Logger
}

// Executor drives one Run to completion: staging inputs, dispatching
// steps under the scheduler's ready-set, resolving commands against the
// shared Context, invoking the container runtime, and journaling every
// transition. All mutable state lives on the Executor instance so a
// process may run multiple Executors concurrently (§9).
type Executor struct {
	wf   *Workflow
	ws   *Workspace
	iom  *IOManager
	rt   container.Runtime
	opts ExecutorOptions
	ctx  *Context
	now  func() time.Time
}

// NewExecutor wires a Workflow, its materialized Workspace, an
// IOManager bound to that workspace, and a container.Runtime into an
// Executor ready to run.
func NewExecutor(wf *Workflow, ws *Workspace, iom *IOManager, rt container.Runtime, opts ExecutorOptions) *Executor {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	c := NewContext(ws.Run.Dir)
	c.Set("run_dir", ws.Run.Dir)
	c.Set("config.base_dir", wf.Config.BaseDir)
	c.Set("config.refs", wf.Config.Refs)
	return &Executor{wf: wf, ws: ws, iom: iom, rt: rt, opts: opts, ctx: c, now: time.Now}
}

type stepResult struct {
	name  string
	state StepState
}

// Execute stages inputs, runs steps until every step is terminal or one
// fails (later steps then stay PENDING), purges the temp area after a
// successful run, and journals the final run status. It returns the Run
// alongside a *RunError when one or more steps ended in a failing
// terminal state; setup/definition problems are returned directly
// without a RunError wrapper, per §7's propagation policy.
func (e *Executor) Execute(ctx context.Context, inputOverrides map[string]string) (*Run, error) {
	tracer := e.opts.Tracer
	var span Span
	if tracer != nil {
		ctx, span = tracer.Start(ctx, "workflow.execute",
			StringAttr("workflow.name", e.wf.Name),
			StringAttr("run.id", e.ws.Run.ID))
		defer span.End()
	}

	if e.opts.Store != nil {
		if err := e.opts.Store.RecordRunStart(ctx, e.ws.Run); err != nil {
			if span != nil {
				span.Error(err)
			}
			return e.ws.Run, &SetupError{Stage: "status store", Message: "record run start", Cause: err}
		}
	}

	resolved, err := e.iom.StageInputs(e.wf.Inputs, inputOverrides)
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		return e.ws.Run, err
	}
	if err := ValidateInputs(resolved); err != nil {
		if span != nil {
			span.Error(err)
		}
		return e.ws.Run, err
	}
	for name, v := range resolved {
		e.ctx.Set("inputs."+name, v)
	}

	var failed bool
	if e.opts.MaxParallel <= 1 {
		failed = e.runSequential(ctx)
	} else {
		failed = e.runConcurrent(ctx)
	}

	if !failed {
		if err := e.ws.PurgeTemp(); err != nil {
			return e.ws.Run, &SetupError{Stage: "cleanup", Message: "purge tmp", Cause: err}
		}
	}
	if err := e.ws.Finish(e.now()); err != nil {
		return e.ws.Run, err
	}
	if e.opts.Store != nil {
		finishedAt := e.now()
		if e.ws.Run.FinishedAt != nil {
			finishedAt = *e.ws.Run.FinishedAt
		}
		_ = e.opts.Store.RecordRunFinish(ctx, e.ws.Run.ID, e.ws.Run.Status, finishedAt)
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.RunTerminal(ctx, string(e.ws.Run.Status))
	}
	e.opts.Logger.Info("run finished", "workflow", e.wf.Name, "run_id", e.ws.Run.ID, "status", e.ws.Run.Status)

	if failed {
		firstMsg, failedSteps := e.collectFailures()
		runErr := &RunError{RunID: e.ws.Run.ID, FailedSteps: failedSteps, FirstMessage: firstMsg}
		if span != nil {
			span.Error(runErr)
		}
		return e.ws.Run, runErr
	}
	return e.ws.Run, nil
}

// runSequential runs the topological order one step at a time, stopping
// dispatch after the first failing step (the remaining steps stay
// PENDING, matching the concurrent path's abort semantics).
func (e *Executor) runSequential(ctx context.Context) bool {
	order, _ := e.wf.ExecutionOrder()
	failed := false
	for _, name := range order {
		if failed {
			break
		}
		state := e.executeStep(ctx, name)
		e.ws.Run.SetStepState(name, state)
		e.writeJournal(name)
		e.recordStepTransition(ctx, name, state)
		if state.Status.Failed() {
			failed = true
		}
	}
	return failed
}

// runConcurrent drives the ready-set loop against a worker pool of size
// MaxParallel. On the first failing step it stops new dispatches but
// awaits every already-running step before returning, per §5/§7: "a
// failure aborts: no further dispatches, outstanding workers are
// awaited" — the in-flight steps are never killed.
func (e *Executor) runConcurrent(ctx context.Context) bool {
	sched := NewScheduler(e.wf)
	completed := make(map[string]bool, len(e.wf.Steps))
	dispatched := make(map[string]bool, len(e.wf.Steps))
	// Buffered to the total step count so a finished goroutine can always
	// deliver its result without blocking on a receiver, even while the
	// dispatch loop below is itself blocked acquiring a semaphore slot.
	resultCh := make(chan stepResult, len(e.wf.Steps))
	sem := make(chan struct{}, e.opts.MaxParallel)

	inFlight := 0
	failed := false
	aborted := false

	for !sched.IsComplete(completed) {
		if !aborted {
			for _, name := range sched.Ready(completed) {
				if dispatched[name] {
					continue
				}
				dispatched[name] = true
				inFlight++
				sem <- struct{}{}
				go func(name string) {
					defer func() { <-sem }()
					resultCh <- stepResult{name: name, state: e.executeStep(ctx, name)}
				}(name)
			}
		}

		if inFlight == 0 {
			// Nothing running and nothing left to dispatch: either
			// aborted with steps still PENDING, or (unreachable once
			// Parse has validated acyclicity) a stalled graph.
			break
		}

		res := <-resultCh
		inFlight--
		completed[res.name] = true
		e.ws.Run.SetStepState(res.name, res.state)
		e.writeJournal(res.name)
		e.recordStepTransition(ctx, res.name, res.state)
		if res.state.Status.Failed() {
			failed = true
			aborted = true
		}
	}
	return failed
}

// executeStep runs the per-step lifecycle in §4.6: resource snapshot,
// context update, command resolution, image availability, container
// run, output enumeration, exit-code classification. Any engine-level
// failure along the way short-circuits to StepError/ERROR with the
// message preserved.
func (e *Executor) executeStep(ctx context.Context, name string) StepState {
	step := e.wf.Steps[name]
	start := e.now()

	var span Span
	if e.opts.Tracer != nil {
		ctx, span = e.opts.Tracer.Start(ctx, "workflow.step", StringAttr("step.name", name))
		defer span.End()
	}

	runID := e.ws.Run.ID
	e.opts.Logger.Info("step dispatched", "workflow", e.wf.Name, "run_id", runID, "step", name)

	e.ws.Run.SetStepState(name, StepState{Status: StepRunning, StartTime: &start})
	e.writeJournal(name)

	res := step.Resources
	if e.opts.EnableTimeLimits {
		if res.TimeLimit == "" {
			res.TimeLimit = e.opts.DefaultTimeLimit
		}
	} else {
		res.TimeLimit = ""
	}

	var timeLimitDur time.Duration
	if res.TimeLimit != "" {
		d, err := ParseTimeLimit(res.TimeLimit)
		if err != nil {
			return e.errorState(start, span, name, &StepError{Step: name, Message: "parse time_limit", Cause: err})
		}
		timeLimitDur = d
	}

	e.ctx.Update(map[string]any{
		"step":      map[string]any{"name": name},
		"resources": map[string]any{"cpu": res.CPU, "memory": res.Memory},
	})
	command := e.ctx.Resolve(step.Command)

	e.opts.Logger.Info("ensuring image available", "workflow", e.wf.Name, "run_id", runID, "step", name, "image", step.Container)
	var pullSpan Span
	pullCtx := ctx
	if e.opts.Tracer != nil {
		pullCtx, pullSpan = e.opts.Tracer.Start(ctx, "container.pull", StringAttr("container.image", step.Container))
	}
	pullStart := e.now()
	pullErr := e.rt.EnsureAvailable(pullCtx, step.Container)
	if e.opts.Metrics != nil {
		e.opts.Metrics.ContainerPullDuration(ctx, e.now().Sub(pullStart).Seconds())
	}
	if pullSpan != nil {
		if pullErr != nil {
			pullSpan.Error(pullErr)
		}
		pullSpan.End()
	}
	if pullErr != nil {
		return e.errorState(start, span, name, &StepError{Step: name, Message: "ensure image available", Cause: pullErr})
	}

	logPath := filepath.Join(e.ws.Run.Dir, "logs", name+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return e.errorState(start, span, name, &StepError{Step: name, Message: "open log file", Cause: err})
	}
	defer logFile.Close()

	var containerSpan Span
	runCtx := ctx
	if e.opts.Tracer != nil {
		runCtx, containerSpan = e.opts.Tracer.Start(ctx, "container.run", StringAttr("container.image", step.Container))
	}
	exitCode, err := e.rt.Run(runCtx, container.RunRequest{
		Image:      step.Container,
		Command:    command,
		Resources:  container.Resources{CPU: res.CPU, Memory: res.Memory, TimeLimit: timeLimitDur},
		RunDir:     e.ws.Run.Dir,
		WorkingDir: "/data",
		Log:        logFile,
	})
	if containerSpan != nil {
		containerSpan.SetAttr(IntAttr("container.exit_code", exitCode))
		containerSpan.End()
	}
	if err != nil {
		return e.errorState(start, span, name, &StepError{Step: name, Message: "container run", Cause: err})
	}

	outputs, err := e.iom.StepOutputs(name)
	if err != nil {
		return e.errorState(start, span, name, &StepError{Step: name, Message: "enumerate outputs", Cause: err})
	}
	e.ctx.Set("steps."+name+".outputs.files", outputs)

	end := e.now()
	duration := end.Sub(start).Seconds()
	state := StepState{
		StartTime: &start,
		EndTime:   &end,
		Duration:  &duration,
		ExitCode:  &exitCode,
		TimeLimit: res.TimeLimit,
		LogFile:   logPath,
		Outputs:   &StepOutputs{Files: outputs},
	}

	switch exitCode {
	case 0:
		state.Status = StepCompleted
	case container.ExitTimeout:
		state.Status = StepTerminatedTimeLimit
		fmt.Fprintln(logFile, "\n--- STEP TERMINATED DUE TO TIME LIMIT ---")
		e.opts.Logger.Warn("step killed on time limit", "workflow", e.wf.Name, "run_id", runID, "step", name, "time_limit", res.TimeLimit)
	default:
		state.Status = StepFailed
		if exitCode == 2 {
			fmt.Fprintln(logFile, "hint: exit code 2 frequently indicates a shell syntax error")
		}
	}
	if span != nil {
		span.SetAttr(StringAttr("step.status", string(state.Status)))
	}
	e.opts.Logger.Info("step reached terminal status", "workflow", e.wf.Name, "run_id", runID, "step", name, "status", state.Status, "exit_code", exitCode)
	if e.opts.Metrics != nil {
		e.opts.Metrics.StepTerminal(ctx, string(state.Status))
		e.opts.Metrics.StepDuration(ctx, string(state.Status), duration)
	}
	return state
}

// recordStepTransition mirrors a step's new state into the optional
// StatusStore. Mirroring is best-effort: a store error never fails the
// run, since the journal (step_status.json/status.txt) remains the
// source of truth.
func (e *Executor) recordStepTransition(ctx context.Context, name string, state StepState) {
	if e.opts.Store == nil {
		return
	}
	_ = e.opts.Store.RecordStepTransition(ctx, e.ws.Run.ID, name, state)
}

// errorState builds the ERROR StepState for an engine-level failure,
// preserving the triggering error's message.
func (e *Executor) errorState(start time.Time, span Span, name string, err error) StepState {
	end := e.now()
	duration := end.Sub(start).Seconds()
	if span != nil {
		span.Error(err)
	}
	e.opts.Logger.Error("step reached terminal status", "workflow", e.wf.Name, "run_id", e.ws.Run.ID, "step", name, "status", StepError, "error", err)
	if e.opts.Metrics != nil {
		e.opts.Metrics.StepTerminal(context.Background(), string(StepError))
		e.opts.Metrics.StepDuration(context.Background(), string(StepError), duration)
	}
	return StepState{
		Status:    StepError,
		StartTime: &start,
		EndTime:   &end,
		Duration:  &duration,
		Error:     err.Error(),
	}
}

// writeJournal persists the run's current state to disk, logging (but
// not failing the run on) a write error — the in-memory Run remains
// authoritative for the rest of this Execute call.
func (e *Executor) writeJournal(step string) {
	if err := e.ws.WriteJournal(); err != nil {
		e.opts.Logger.Error("journal write failed", "workflow", e.wf.Name, "run_id", e.ws.Run.ID, "step", step, "error", err)
	}
}

// collectFailures walks the final step states in document order and
// reports every step in a failing terminal state plus the first
// failure's message, for RunError.
func (e *Executor) collectFailures() (string, []string) {
	snapshot := e.ws.Run.snapshotSteps()
	var failedSteps []string
	var firstMessage string
	for _, name := range e.wf.orderedNames() {
		s := snapshot[name]
		if !s.Status.Failed() {
			continue
		}
		failedSteps = append(failedSteps, name)
		if firstMessage == "" {
			if s.Error != "" {
				firstMessage = s.Error
			} else {
				firstMessage = string(s.Status)
			}
		}
	}
	return firstMessage, failedSteps
}
