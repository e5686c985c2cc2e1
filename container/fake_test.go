package container

import (
	"context"
	"testing"
	"time"
)

func TestFakeEnsureAvailablePullsOnlyWhenMissing(t *testing.T) {
	f := NewFake()
	f.SetMissing("alpine:3.19")

	if err := f.EnsureAvailable(context.Background(), "alpine:3.19"); err != nil {
		t.Fatal(err)
	}
	if len(f.Pulls()) != 1 {
		t.Fatalf("expected one pull, got %v", f.Pulls())
	}

	if err := f.EnsureAvailable(context.Background(), "alpine:3.19"); err != nil {
		t.Fatal(err)
	}
	if len(f.Pulls()) != 1 {
		t.Fatalf("expected no additional pull once available, got %v", f.Pulls())
	}
}

func TestFakeEnsureAvailableSkipsPullWhenPresent(t *testing.T) {
	f := NewFake()
	if err := f.EnsureAvailable(context.Background(), "ubuntu:22.04"); err != nil {
		t.Fatal(err)
	}
	if len(f.Pulls()) != 0 {
		t.Fatalf("expected no pulls for an already-present image, got %v", f.Pulls())
	}
}

func TestFakeRunReturnsConfiguredExitCode(t *testing.T) {
	f := NewFake()
	f.ExitCodes["tool:1"] = 2

	code, err := f.Run(context.Background(), RunRequest{Image: "tool:1", Command: "exit 2"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestFakeRunTimesOutBeforeSleepCompletes(t *testing.T) {
	f := NewFake()
	f.Sleep["slow:1"] = 200 * time.Millisecond

	code, err := f.Run(context.Background(), RunRequest{
		Image:     "slow:1",
		Resources: Resources{TimeLimit: 20 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	if code != ExitTimeout {
		t.Errorf("exit code = %d, want ExitTimeout (%d)", code, ExitTimeout)
	}
}

func TestFakeRunRecordsRequests(t *testing.T) {
	f := NewFake()
	_, _ = f.Run(context.Background(), RunRequest{Image: "a:1", Command: "echo hi"})
	_, _ = f.Run(context.Background(), RunRequest{Image: "b:1", Command: "echo bye"})

	runs := f.Runs()
	if len(runs) != 2 || runs[0].Image != "a:1" || runs[1].Image != "b:1" {
		t.Errorf("unexpected recorded runs: %+v", runs)
	}
}

func TestFakeRunPropagatesConfiguredError(t *testing.T) {
	f := NewFake()
	f.Err["broken:1"] = context.DeadlineExceeded

	_, err := f.Run(context.Background(), RunRequest{Image: "broken:1"})
	if err == nil {
		t.Fatal("expected configured error to propagate")
	}
}

func TestFakeRunStreamsLines(t *testing.T) {
	f := NewFake()
	var lines []string
	_, err := f.Run(context.Background(), RunRequest{
		Image:      "a:1",
		StreamFunc: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) == 0 {
		t.Error("expected at least one streamed line")
	}
}
