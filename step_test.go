package bioinfoflow

import "testing"

func TestStepStatusTerminal(t *testing.T) {
	terminal := []StepStatus{StepCompleted, StepFailed, StepTerminatedTimeLimit, StepSkipped, StepError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []StepStatus{StepPending, StepRunning}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStepStatusFailed(t *testing.T) {
	failing := []StepStatus{StepFailed, StepTerminatedTimeLimit, StepError}
	for _, s := range failing {
		if !s.Failed() {
			t.Errorf("%s should count as failed", s)
		}
	}
	if StepCompleted.Failed() {
		t.Error("COMPLETED should not count as failed")
	}
}

func TestStepStateCloneIndependent(t *testing.T) {
	exit := 0
	orig := StepState{Status: StepCompleted, ExitCode: &exit, Outputs: &StepOutputs{Files: []string{"a.txt"}}}
	c := orig.clone()
	*c.ExitCode = 1
	c.Outputs.Files[0] = "b.txt"
	if *orig.ExitCode != 0 {
		t.Error("mutating clone's ExitCode affected original")
	}
	if orig.Outputs.Files[0] != "a.txt" {
		t.Error("mutating clone's Outputs affected original")
	}
}
