package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Execution.MaxParallel != 1 {
		t.Errorf("expected max_parallel 1, got %d", cfg.Execution.MaxParallel)
	}
	if !cfg.Execution.EnableTimeLimits {
		t.Errorf("expected time limits enabled by default")
	}
	if cfg.Execution.DefaultTimeLimit != "1h" {
		t.Errorf("expected default time limit 1h, got %s", cfg.Execution.DefaultTimeLimit)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[execution]
max_parallel = 4
default_time_limit = "30m"

[container]
host = "tcp://remote:2376"
`), 0644)

	cfg := Load(path)
	if cfg.Execution.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", cfg.Execution.MaxParallel)
	}
	if cfg.Execution.DefaultTimeLimit != "30m" {
		t.Errorf("expected 30m, got %s", cfg.Execution.DefaultTimeLimit)
	}
	if cfg.Container.Host != "tcp://remote:2376" {
		t.Errorf("expected tcp://remote:2376, got %s", cfg.Container.Host)
	}
	// Defaults preserved for fields the file didn't set.
	if !cfg.Execution.EnableTimeLimits {
		t.Errorf("default should be preserved")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BIOINFOFLOW_MAX_PARALLEL", "8")
	t.Setenv("BIOINFOFLOW_DEFAULT_TIME_LIMIT", "2h")
	t.Setenv("BIOINFOFLOW_ENABLE_TIME_LIMITS", "false")
	t.Setenv("BIOINFOFLOW_STATUS_DRIVER", "sqlite")
	t.Setenv("BIOINFOFLOW_STATUS_DSN", "file:status.db")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Execution.MaxParallel != 8 {
		t.Errorf("expected max_parallel 8, got %d", cfg.Execution.MaxParallel)
	}
	if cfg.Execution.DefaultTimeLimit != "2h" {
		t.Errorf("expected 2h, got %s", cfg.Execution.DefaultTimeLimit)
	}
	if cfg.Execution.EnableTimeLimits {
		t.Errorf("expected time limits disabled")
	}
	if cfg.Status.Driver != "sqlite" || cfg.Status.DSN != "file:status.db" {
		t.Errorf("expected status mirror env overrides applied, got %+v", cfg.Status)
	}
}

func TestEnvOverrideIgnoresInvalidMaxParallel(t *testing.T) {
	t.Setenv("BIOINFOFLOW_MAX_PARALLEL", "not-a-number")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Execution.MaxParallel != 1 {
		t.Errorf("expected default max_parallel 1 preserved, got %d", cfg.Execution.MaxParallel)
	}
}
