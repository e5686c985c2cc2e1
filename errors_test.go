package bioinfoflow

import (
	"errors"
	"testing"
)

func TestValidationErrorMessage(t *testing.T) {
	e := &ValidationError{Field: "name", Message: "must match identifier regex"}
	want := `validation: name: must match identifier regex`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCircularDependencyErrorMessage(t *testing.T) {
	e := &CircularDependencyError{Step: "b"}
	want := `circular dependency detected involving step "b"`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStepErrorUnwrap(t *testing.T) {
	cause := errors.New("pull failed")
	e := &StepError{Step: "align", Message: "image not available", Cause: cause}
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestSetupErrorWithoutCause(t *testing.T) {
	e := &SetupError{Stage: "inputs", Message: "no match for reads"}
	want := `setup (inputs): no match for reads`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
