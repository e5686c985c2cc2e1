package bioinfoflow

import (
	"reflect"
	"testing"
)

const diamondDoc = `
name: diamond
version: 1.0.0
steps:
  a:
    container: alpine:3.19
    command: "echo a"
  b:
    container: alpine:3.19
    command: "echo b"
    after: [a]
  c:
    container: alpine:3.19
    command: "echo c"
    after: [a]
  d:
    container: alpine:3.19
    command: "echo d"
    after: [b, c]
`

func TestSchedulerReadyRespectsDependencies(t *testing.T) {
	wf, err := Parse([]byte(diamondDoc))
	if err != nil {
		t.Fatal(err)
	}
	sched := NewScheduler(wf)

	ready := sched.Ready(map[string]bool{})
	if !reflect.DeepEqual(ready, []string{"a"}) {
		t.Fatalf("Ready(none completed) = %v, want [a]", ready)
	}

	ready = sched.Ready(map[string]bool{"a": true})
	if len(ready) != 2 || ready[0] != "b" || ready[1] != "c" {
		t.Fatalf("Ready(a completed) = %v, want [b c]", ready)
	}

	ready = sched.Ready(map[string]bool{"a": true, "b": true})
	if !reflect.DeepEqual(ready, []string{"c"}) {
		t.Fatalf("Ready(a,b completed) = %v, want [c]", ready)
	}

	ready = sched.Ready(map[string]bool{"a": true, "b": true, "c": true})
	if !reflect.DeepEqual(ready, []string{"d"}) {
		t.Fatalf("Ready(a,b,c completed) = %v, want [d]", ready)
	}
}

func TestSchedulerReadyNeverRevisitsCompleted(t *testing.T) {
	wf, err := Parse([]byte(diamondDoc))
	if err != nil {
		t.Fatal(err)
	}
	sched := NewScheduler(wf)
	completed := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	if ready := sched.Ready(completed); len(ready) != 0 {
		t.Fatalf("expected no ready steps once all completed, got %v", ready)
	}
}

func TestSchedulerIsComplete(t *testing.T) {
	wf, err := Parse([]byte(diamondDoc))
	if err != nil {
		t.Fatal(err)
	}
	sched := NewScheduler(wf)
	if sched.IsComplete(map[string]bool{"a": true}) {
		t.Fatal("expected incomplete with only one of four steps done")
	}
	if !sched.IsComplete(map[string]bool{"a": true, "b": true, "c": true, "d": true}) {
		t.Fatal("expected complete with all four steps done")
	}
}

func TestSchedulerLevelsGroupsDiamond(t *testing.T) {
	wf, err := Parse([]byte(diamondDoc))
	if err != nil {
		t.Fatal(err)
	}
	sched := NewScheduler(wf)
	levels := sched.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "a" {
		t.Errorf("level 0 = %v, want [a]", levels[0])
	}
	if len(levels[2]) != 1 || levels[2][0] != "d" {
		t.Errorf("level 2 = %v, want [d]", levels[2])
	}
}
