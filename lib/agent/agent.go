// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the platform's view of an installed agent and
// the registry interface through which every component reads and
// mutates agent state. The registry's storage and process mechanics
// are collaborator concerns; the supervisor and install orchestrator
// consume only the [Registry] interface.
package agent

import (
	"errors"
)

// Agent describes one installed agent.
type Agent struct {
	// Identity is the stable unique name dependents address the agent
	// by. Assigned at install time, constant across upgrades.
	Identity string `json:"identity"`

	// UUID is the opaque installation id, unique per installation. A
	// forced reinstall produces a fresh UUID for the same identity.
	UUID string `json:"uuid"`

	// Name is the display name, typically derived from the artifact
	// filename.
	Name string `json:"name"`

	// Tag is an optional free-form label.
	Tag string `json:"tag,omitempty"`

	// Priority orders autostart: "00" (first) through "99" (last).
	// Empty disables autostart.
	Priority string `json:"priority,omitempty"`

	// ArtifactHash is the hex BLAKE3 fingerprint of the installed
	// artifact, recorded at install time.
	ArtifactHash string `json:"artifact_hash,omitempty"`
}

// Status is the process state of an agent: not yet started (zero
// value), running, cleanly stopped, or crashed.
type Status struct {
	// PID is the process id of the current or most recent run. Zero
	// when the agent has never been started.
	PID int

	// Running reports whether the process is alive.
	Running bool

	// ExitCode is the exit status of the most recent run, nil while
	// running or never started.
	ExitCode *int
}

// Crashed reports whether the agent exists but did not stop cleanly:
// not running, with a recorded non-zero exit status.
func (s Status) Crashed() bool {
	return !s.Running && s.ExitCode != nil && *s.ExitCode != 0
}

// Keypair is an agent's curve25519 keystore, preserved across forced
// reinstalls so integrations keyed to the public key stay valid.
type Keypair struct {
	Public string `json:"public"`
	Secret string `json:"secret"`
}

// ErrNotFound reports a lookup of an unknown agent uuid or identity.
var ErrNotFound = errors.New("agent: not found")

// ErrUnavailable reports that the registry backend could not serve the
// operation. Fatal to the current operation, propagated to the caller.
var ErrUnavailable = errors.New("agent: registry unavailable")

// ValidPriority reports whether priority is an accepted autostart
// value: empty (autostart disabled) or exactly two ASCII digits
// "00".."99".
func ValidPriority(priority string) bool {
	if priority == "" {
		return true
	}
	if len(priority) != 2 {
		return false
	}
	for _, c := range priority {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
