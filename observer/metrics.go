package observer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lewislovelock/bioinfoflow"
)

// otelMetrics implements bioinfoflow.Metrics over a set of Instruments.
type otelMetrics struct {
	inst *Instruments
}

// NewMetrics returns a bioinfoflow.Metrics backed by inst. Call
// observer.Init() first to obtain inst; otherwise the underlying
// instruments record against a no-op meter.
func NewMetrics(inst *Instruments) bioinfoflow.Metrics {
	return &otelMetrics{inst: inst}
}

func (m *otelMetrics) StepTerminal(ctx context.Context, status string) {
	m.inst.StepsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step.status", status)))
}

func (m *otelMetrics) StepDuration(ctx context.Context, status string, seconds float64) {
	m.inst.StepDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("step.status", status)))
}

func (m *otelMetrics) RunTerminal(ctx context.Context, status string) {
	m.inst.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", status)))
}

func (m *otelMetrics) ContainerPullDuration(ctx context.Context, seconds float64) {
	m.inst.ContainerPullDuration.Record(ctx, seconds)
}

// compile-time check
var _ bioinfoflow.Metrics = (*otelMetrics)(nil)
