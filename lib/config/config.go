// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the daemon configuration, loaded from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts the human form: "5s",
// "10m", "1h30m". Bare integers are rejected.
type Duration time.Duration

// UnmarshalYAML implements custom unmarshaling from duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full daemon configuration.
type Config struct {
	// RootDir is where agent installations live.
	RootDir string `yaml:"root_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Supervisor SupervisorConfig `yaml:"supervisor"`
	Transfer   TransferConfig   `yaml:"transfer"`
}

// SupervisorConfig tunes crash supervision.
type SupervisorConfig struct {
	// PollInterval is the cadence of the health sweep.
	PollInterval Duration `yaml:"poll_interval"`

	// AttemptBudget is how many restarts are tried before alerting.
	AttemptBudget int `yaml:"attempt_budget"`

	// BackoffStep is the delay increment between restart attempts.
	BackoffStep Duration `yaml:"backoff_step"`
}

// TransferConfig tunes artifact downloads.
type TransferConfig struct {
	// ChunkSize is the byte bound requested per fetch.
	ChunkSize int `yaml:"chunk_size"`

	// ReceiveTimeout bounds each wait for a transfer response.
	ReceiveTimeout Duration `yaml:"receive_timeout"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		RootDir:  "/var/lib/volttron",
		LogLevel: "info",
		Supervisor: SupervisorConfig{
			PollInterval:  Duration(5 * time.Second),
			AttemptBudget: 5,
			BackoffStep:   Duration(5 * time.Minute),
		},
		Transfer: TransferConfig{
			ChunkSize:      1024,
			ReceiveTimeout: Duration(30 * time.Second),
		},
	}
}

// Load reads the YAML file at path over the defaults. Fields absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir must be set")
	}
	if _, ok := c.slogLevel(); !ok {
		return fmt.Errorf("log_level %q: want debug, info, warn, or error", c.LogLevel)
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("supervisor.poll_interval must be positive")
	}
	if c.Supervisor.AttemptBudget <= 0 {
		return fmt.Errorf("supervisor.attempt_budget must be positive")
	}
	if c.Supervisor.BackoffStep <= 0 {
		return fmt.Errorf("supervisor.backoff_step must be positive")
	}
	if c.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("transfer.chunk_size must be positive")
	}
	if c.Transfer.ReceiveTimeout <= 0 {
		return fmt.Errorf("transfer.receive_timeout must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto its slog value. Call Validate first;
// an unknown level falls back to info.
func (c Config) SlogLevel() slog.Level {
	level, _ := c.slogLevel()
	return level
}

func (c Config) slogLevel() (slog.Level, bool) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
