package bioinfoflow

import (
	"context"
	"time"
)

// StatusStore mirrors run/step status transitions into a relational
// store. It is a pure consumer of the same transitions the Workspace
// already journals to step_status.json/status.txt — a StatusStore never
// drives execution and the Executor runs correctly with a nil one.
type StatusStore interface {
	// RecordRunStart persists the creation of a new run.
	RecordRunStart(ctx context.Context, run *Run) error
	// RecordStepTransition persists a step reaching a new StepState.
	RecordStepTransition(ctx context.Context, runID, step string, state StepState) error
	// RecordRunFinish persists a run reaching its terminal RunStatus.
	RecordRunFinish(ctx context.Context, runID string, status RunStatus, finishedAt time.Time) error
}
