// Package config holds the engine's process-level configuration: the
// settings that govern how the engine runs workflows, as opposed to a
// single workflow document's own embedded Config (base_dir/refs), which
// stays a field of the parsed Workflow.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Execution ExecutionConfig `toml:"execution"`
	Container ContainerConfig `toml:"container"`
	Observer  ObserverConfig  `toml:"observer"`
	Status    StatusConfig    `toml:"status"`
}

// ExecutionConfig governs the scheduler/executor's default behavior
// when a workflow document or CLI invocation does not override it.
type ExecutionConfig struct {
	MaxParallel      int    `toml:"max_parallel"`
	EnableTimeLimits bool   `toml:"enable_time_limits"`
	DefaultTimeLimit string `toml:"default_time_limit"`
}

// ContainerConfig addresses the container runtime daemon.
type ContainerConfig struct {
	Host     string `toml:"host"`
	CertPath string `toml:"cert_path"`
}

// ObserverConfig controls OTEL export of traces and metrics.
type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// StatusConfig addresses the optional status-mirror store. Empty Driver
// means no mirror: the executor runs with a nil StatusStore.
type StatusConfig struct {
	Driver string `toml:"driver"` // "postgres", "sqlite", or "" (disabled)
	DSN    string `toml:"dsn"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Execution: ExecutionConfig{
			MaxParallel:      1,
			EnableTimeLimits: true,
			DefaultTimeLimit: "1h",
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). A
// missing file at path is silently ignored, matching the teacher's
// layered-config idiom.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "bioinfoflow.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("BIOINFOFLOW_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Execution.MaxParallel = n
		}
	}
	if v := os.Getenv("BIOINFOFLOW_DEFAULT_TIME_LIMIT"); v != "" {
		cfg.Execution.DefaultTimeLimit = v
	}
	if v := os.Getenv("BIOINFOFLOW_ENABLE_TIME_LIMITS"); v != "" {
		cfg.Execution.EnableTimeLimits = v == "true" || v == "1"
	}
	if v := os.Getenv("BIOINFOFLOW_CONTAINER_HOST"); v != "" {
		cfg.Container.Host = v
	}
	if v := os.Getenv("BIOINFOFLOW_CONTAINER_CERT_PATH"); v != "" {
		cfg.Container.CertPath = v
	}
	if v := os.Getenv("BIOINFOFLOW_OTEL_ENABLED"); v != "" {
		cfg.Observer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("BIOINFOFLOW_STATUS_DRIVER"); v != "" {
		cfg.Status.Driver = v
	}
	if v := os.Getenv("BIOINFOFLOW_STATUS_DSN"); v != "" {
		cfg.Status.DSN = v
	}

	return cfg
}
