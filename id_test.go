package bioinfoflow

import (
	"regexp"
	"testing"
	"time"
)

func TestNewIDUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Error("two IDs should be unique")
	}
}

var runIDPattern = regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f]{8}$`)

func TestGenerateRunIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	id := GenerateRunID(now)
	if !runIDPattern.MatchString(id) {
		t.Errorf("GenerateRunID() = %q, want match of %s", id, runIDPattern)
	}
	if id[:15] != "20260305_093000" {
		t.Errorf("timestamp prefix = %q, want 20260305_093000", id[:15])
	}
}

func TestGenerateRunIDUnique(t *testing.T) {
	now := time.Now()
	if GenerateRunID(now) == GenerateRunID(now) {
		t.Error("two run IDs generated at the same instant should still differ")
	}
}
