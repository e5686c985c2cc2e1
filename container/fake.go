package container

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory Runtime that never talks to a daemon, for
// driving the scheduler/executor test suite deterministically. Spec §9
// calls out exactly this substitution: "a mock implementation drives
// the test suite without invoking any real container runtime."
type Fake struct {
	mu sync.Mutex

	// Images present without a Pull call. Pull adds to this set.
	available map[string]bool
	pulls     []string

	// ExitCodes maps image -> exit code returned by Run. Defaults to 0
	// for any image not listed.
	ExitCodes map[string]int
	// Sleep, if set for an image, is how long Run blocks before
	// returning, letting tests simulate a time-limit kill by setting
	// Sleep longer than the step's resources.TimeLimit.
	Sleep map[string]time.Duration
	// Err, if set for an image, is returned verbatim by Run instead of
	// an exit code, simulating an engine-level failure to launch.
	Err map[string]error
	// Effect, if set for an image, runs against the RunRequest before
	// Run returns — tests use this to materialize the output files a
	// real container command would have written under RunDir.
	Effect map[string]func(RunRequest) error

	runs []RunRequest
}

// NewFake returns a Fake with every image already available (no pulls
// needed) unless a test calls SetMissing.
func NewFake() *Fake {
	return &Fake{
		available: make(map[string]bool),
		ExitCodes: make(map[string]int),
		Sleep:     make(map[string]time.Duration),
		Err:       make(map[string]error),
		Effect:    make(map[string]func(RunRequest) error),
	}
}

// SetMissing marks image as not locally available, so ImageExists
// returns false until Pull is called for it.
func (f *Fake) SetMissing(image string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[image] = false
}

func (f *Fake) ImageExists(ctx context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	present, seen := f.available[image]
	if !seen {
		return true, nil
	}
	return present, nil
}

func (f *Fake) Pull(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, image)
	f.available[image] = true
	return nil
}

func (f *Fake) EnsureAvailable(ctx context.Context, image string) error {
	return ensureAvailable(ctx, f, image)
}

// Pulls returns the images Pull was called with, in call order.
func (f *Fake) Pulls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.pulls))
	copy(out, f.pulls)
	return out
}

// Runs returns every RunRequest passed to Run, in call order.
func (f *Fake) Runs() []RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RunRequest, len(f.runs))
	copy(out, f.runs)
	return out
}

func (f *Fake) Run(ctx context.Context, req RunRequest) (int, error) {
	f.mu.Lock()
	f.runs = append(f.runs, req)
	sleep := f.Sleep[req.Image]
	exitCode := f.ExitCodes[req.Image]
	runErr := f.Err[req.Image]
	effect := f.Effect[req.Image]
	f.mu.Unlock()

	if runErr != nil {
		return 0, runErr
	}
	if effect != nil {
		if err := effect(req); err != nil {
			return 0, err
		}
	}

	if req.StreamFunc != nil {
		req.StreamFunc(fmt.Sprintf("fake: running %s", req.Image))
	}
	if req.Log != nil {
		fmt.Fprintf(req.Log, "fake: running %s\ncommand: %s\n", req.Image, req.Command)
	}

	if sleep == 0 {
		return exitCode, nil
	}

	var limit <-chan time.Time
	if req.Resources.TimeLimit > 0 {
		timer := time.NewTimer(req.Resources.TimeLimit)
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-time.After(sleep):
		return exitCode, nil
	case <-limit:
		return ExitTimeout, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// DrainLines splits s on newlines and feeds every non-empty line to fn,
// a convenience for tests asserting against streamed output.
func DrainLines(s string, fn func(line string)) {
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if scanner.Text() != "" {
			fn(scanner.Text())
		}
	}
}
