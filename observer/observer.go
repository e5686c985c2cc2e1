// Package observer provides OTEL-based observability for the engine's
// workflow, step, and container operations.
//
// It exposes a Tracer (see tracer.go) for workflow.execute/workflow.step/
// container.run spans and a set of metric Instruments counting step
// terminal outcomes and timing step/container durations. Users export to
// any OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/lewislovelock/bioinfoflow/observer"

// Instruments holds the OTEL instruments the executor reports against
// (through NewMetrics); the container adapter records no metrics.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// StepsTotal counts steps reaching each terminal status, labeled by
	// the "step.status" attribute at record time.
	StepsTotal metric.Int64Counter
	// RunsTotal counts runs reaching COMPLETED or FAILED, labeled by the
	// "run.status" attribute at record time.
	RunsTotal metric.Int64Counter

	// StepDuration is a histogram of per-step wall-clock seconds.
	StepDuration metric.Float64Histogram
	// ContainerPullDuration is a histogram of EnsureAvailable latency,
	// recorded for every step whether or not an image was pulled.
	ContainerPullDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc). Returns a shutdown function that
// must be called on process exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("bioinfoflow")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	stepsTotal, err := meter.Int64Counter("workflow.steps",
		metric.WithDescription("Steps reaching a terminal status"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}

	runsTotal, err := meter.Int64Counter("workflow.runs",
		metric.WithDescription("Runs reaching a terminal status"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram("workflow.step.duration",
		metric.WithDescription("Per-step wall-clock duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	pullDuration, err := meter.Float64Histogram("container.pull.duration",
		metric.WithDescription("Image availability check and pull latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:                tracer,
		Meter:                 meter,
		StepsTotal:            stepsTotal,
		RunsTotal:             runsTotal,
		StepDuration:          stepDuration,
		ContainerPullDuration: pullDuration,
	}, nil
}
