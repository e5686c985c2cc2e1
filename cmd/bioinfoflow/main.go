// Command bioinfoflow runs a single workflow document to completion
// against a Docker daemon, printing the run ID and final status.
//
// This is a minimal demonstration entrypoint, not a full CLI: flags and
// subcommands for listing runs, resuming, or inspecting logs live
// outside the core engine's scope.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/lewislovelock/bioinfoflow"
	"github.com/lewislovelock/bioinfoflow/container"
	"github.com/lewislovelock/bioinfoflow/internal/config"
	"github.com/lewislovelock/bioinfoflow/observer"
	"github.com/lewislovelock/bioinfoflow/store/postgres"
	"github.com/lewislovelock/bioinfoflow/store/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	docPath := os.Getenv("BIOINFOFLOW_WORKFLOW")
	baseDir := os.Getenv("BIOINFOFLOW_BASE_DIR")
	if docPath == "" {
		log.Fatal("BIOINFOFLOW_WORKFLOW (path to a workflow.yaml) is required")
	}
	if baseDir == "" {
		baseDir = "."
	}

	cfg := config.Load(os.Getenv("BIOINFOFLOW_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	doc, err := os.ReadFile(docPath)
	if err != nil {
		log.Fatalf("read workflow document: %v", err)
	}
	wf, err := bioinfoflow.Parse(doc)
	if err != nil {
		log.Fatalf("parse workflow: %v", err)
	}

	ws, err := bioinfoflow.NewWorkspace(wf, baseDir, nil, time.Now())
	if err != nil {
		log.Fatalf("create workspace: %v", err)
	}
	iom := bioinfoflow.NewIOManager(ws)

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("connect to container runtime: %v", err)
	}

	var tracer bioinfoflow.Tracer
	var metrics bioinfoflow.Metrics
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("init observability: %v", err)
		}
		defer shutdown(context.Background())
		tracer = observer.NewTracer()
		metrics = observer.NewMetrics(inst)
	}

	store, closeStore, err := newStatusStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init status store: %v", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	executor := bioinfoflow.NewExecutor(wf, ws, iom, rt, bioinfoflow.ExecutorOptions{
		MaxParallel:      cfg.Execution.MaxParallel,
		EnableTimeLimits: cfg.Execution.EnableTimeLimits,
		DefaultTimeLimit: cfg.Execution.DefaultTimeLimit,
		Tracer:           tracer,
		Metrics:          metrics,
		Store:            store,
	})

	run, err := executor.Execute(ctx, nil)
	if err != nil {
		log.Printf("run %s finished with errors: %v", run.ID, err)
		os.Exit(1)
	}
	log.Printf("run %s completed", run.ID)
}

// newRuntime builds the container.Runtime the executor dispatches
// against: a Docker SDK client, optionally over TLS to a remote daemon.
func newRuntime(cfg config.Config) (container.Runtime, error) {
	var opts []container.DockerOption
	if cfg.Container.Host != "" {
		opts = append(opts, container.WithHost(cfg.Container.Host))
	}
	if cfg.Container.CertPath != "" {
		opts = append(opts, container.WithTLSCertPath(cfg.Container.CertPath))
	}
	return container.NewDocker(opts...)
}

// newStatusStore builds the optional StatusStore mirror named by
// cfg.Status.Driver, or (nil, nil, nil) when no driver is configured.
func newStatusStore(ctx context.Context, cfg config.Config) (bioinfoflow.StatusStore, func(), error) {
	switch cfg.Status.Driver {
	case "":
		return nil, nil, nil
	case "sqlite":
		s := sqlite.New(cfg.Status.DSN)
		if err := s.Init(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Status.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		log.Fatalf("unknown status store driver %q", cfg.Status.Driver)
		return nil, nil, nil
	}
}
