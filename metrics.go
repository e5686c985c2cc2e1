package bioinfoflow

import "context"

// Metrics records counts and durations for run/step/container lifecycle
// events. It mirrors Tracer/Span: an abstract interface in this package,
// implemented concretely by the observer package's OTEL instruments, so
// the executor can depend on it without importing observer (which
// itself imports this package to implement Tracer).
type Metrics interface {
	// StepTerminal records a step reaching a terminal status.
	StepTerminal(ctx context.Context, status string)
	// StepDuration records a step's wall-clock duration in seconds.
	StepDuration(ctx context.Context, status string, seconds float64)
	// RunTerminal records a run reaching a terminal status.
	RunTerminal(ctx context.Context, status string)
	// ContainerPullDuration records image pull latency in seconds.
	ContainerPullDuration(ctx context.Context, seconds float64)
}
