// Package container adapts the engine's resource-bounded, timeout-killed
// step execution onto a container runtime. The default implementation
// talks to a local Docker daemon through the official SDK client; Fake
// drives the scheduler/executor test suite without one, matching the
// capability-abstraction design spec §9 calls for: "a mock
// implementation drives the test suite without invoking any real
// container runtime."
package container

import (
	"context"
	"io"
	"time"
)

// Resources bounds one container invocation. It mirrors the engine's
// Step.Resources but stays independent of the root package's types so
// this package has no import-cycle back to it.
type Resources struct {
	CPU       int           // number of cores, pinned as a CPU quota
	Memory    string        // verbatim memory cap, e.g. "2G"
	TimeLimit time.Duration // 0 means no limit
}

// RunRequest describes one container invocation.
type RunRequest struct {
	Image      string
	Command    string            // shell command, already variable-resolved
	Resources  Resources
	RunDir     string            // host directory bind-mounted to /data
	Volumes    map[string]string // additional host:container bindings
	WorkingDir string            // default "/data"
	// Stdout/stderr destination. If Log is non-nil, combined output is
	// written there. If Log is nil, output is streamed line-by-line to
	// StreamFunc (when set).
	Log        io.Writer
	StreamFunc func(line string)
}

// ExitTimeout is the sentinel exit code returned when a run is killed
// for exceeding its time limit, distinct from any ordinary non-zero
// container exit code.
const ExitTimeout = 124

// Runtime is the capability abstraction the executor depends on:
// check/pull image availability and run a single container to
// completion or forced termination.
type Runtime interface {
	// ImageExists reports whether image is already present locally.
	ImageExists(ctx context.Context, image string) (bool, error)
	// Pull fetches image from its registry.
	Pull(ctx context.Context, image string) error
	// EnsureAvailable checks then pulls image only if missing.
	EnsureAvailable(ctx context.Context, image string) error
	// Run launches image with req.Command under req.Resources, returning
	// the container's exit code, or ExitTimeout if req.Resources.TimeLimit
	// elapsed first.
	Run(ctx context.Context, req RunRequest) (exitCode int, err error)
}

// ensureAvailable is the shared check-then-pull helper both runtimes use.
func ensureAvailable(ctx context.Context, rt Runtime, image string) error {
	exists, err := rt.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return rt.Pull(ctx, image)
}
