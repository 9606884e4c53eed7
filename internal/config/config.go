// Package config defines the YAML-backed configuration types flock's
// components are constructed from: node topology, scheduler tunables,
// migration phase timeouts, and bridge credential references. It owns the
// types, their defaults, and Load for reading a flock.yaml file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig describes this process's identity within the fleet.
type NodeConfig struct {
	NodeID       string `yaml:"node_id"`
	BaseURL      string `yaml:"base_url"`
	ParentURL    string `yaml:"parent_url,omitempty"`
	HomesRootDir string `yaml:"homes_root_dir"`
}

// SchedulerConfig tunes the work-loop coordinator (§4.5).
type SchedulerConfig struct {
	BaseTickInterval  time.Duration `yaml:"base_tick_interval"`
	JitterWindow      time.Duration `yaml:"jitter_window"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	MaxConcurrentTick int           `yaml:"max_concurrent_tick"`
}

// DefaultSchedulerConfig matches the §4.5 parameters exactly.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BaseTickInterval:  60 * time.Second,
		JitterWindow:      10 * time.Second,
		CheckInterval:     30 * time.Second,
		MaxConcurrentTick: 4,
	}
}

// MigrationConfig carries the per-phase timeout table from §6 plus a
// portable-size ceiling. MaxPortableSizeBytes is not read by
// internal/migration: the orchestrator checks snapshot size against its own
// migration.MaxPortableSizeBytes constant right after SNAPSHOTTING.
type MigrationConfig struct {
	PhaseTimeouts         map[string]time.Duration `yaml:"phase_timeouts"`
	MaxPortableSizeBytes  int64                    `yaml:"max_portable_size_bytes"`
	RetryMaxAttempts      int                       `yaml:"retry_max_attempts"`
	RetryInitialDelay     time.Duration             `yaml:"retry_initial_delay"`
	RetryMaxDelay         time.Duration             `yaml:"retry_max_delay"`
	RetryBackoffFactor    float64                   `yaml:"retry_backoff_factor"`
}

// DefaultMigrationConfig matches the §6 phase-timeout-defaults table.
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		PhaseTimeouts: map[string]time.Duration{
			"FREEZING":    30 * time.Second,
			"SNAPSHOTTING": 300 * time.Second,
			"TRANSFERRING": 300 * time.Second,
			"VERIFYING":    60 * time.Second,
			"REHYDRATING":  300 * time.Second,
			"FINALIZING":   30 * time.Second,
		},
		MaxPortableSizeBytes: 512 * 1024 * 1024,
		RetryMaxAttempts:     5,
		RetryInitialDelay:    1 * time.Second,
		RetryMaxDelay:        30 * time.Second,
		RetryBackoffFactor:   2.0,
	}
}

// EchoTrackerConfig holds the one tunable §9 Open Questions flags as
// possibly needing to become configurable; it is exposed here (defaulting
// to the hard-coded 30s from §4.4) so a deployment can override it without
// a code change, without the echo tracker itself needing to know about
// YAML.
type EchoTrackerConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func DefaultEchoTrackerConfig() EchoTrackerConfig {
	return EchoTrackerConfig{TTL: 30 * time.Second, SweepInterval: 60 * time.Second}
}

// BridgeCredentialRef names an environment variable a bridge's webhook
// credential is read from; actual secret storage is out of scope (spec.md
// §1) and delegated to internal/authstore.
type BridgeCredentialRef struct {
	Platform string `yaml:"platform"`
	EnvVar   string `yaml:"env_var"`
}

// Config is the top-level flock.yaml document.
type Config struct {
	Node        NodeConfig            `yaml:"node"`
	Scheduler   SchedulerConfig       `yaml:"scheduler"`
	Migration   MigrationConfig       `yaml:"migration"`
	EchoTracker EchoTrackerConfig     `yaml:"echo_tracker"`
	Bridges     []BridgeCredentialRef `yaml:"bridges"`
}

// Default returns a Config with every tunable set to its §4–§6 default.
func Default() Config {
	return Config{
		Scheduler:   DefaultSchedulerConfig(),
		Migration:   DefaultMigrationConfig(),
		EchoTracker: DefaultEchoTrackerConfig(),
	}
}

// Load reads and parses a flock.yaml file, filling unset fields with
// defaults by parsing onto a Default() base rather than a zero value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
