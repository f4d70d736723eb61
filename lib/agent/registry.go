// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "context"

// Registry is the interface the control plane consumes for agent
// storage and process control. Two implementations exist:
//
//   - *Local: agents installed under a root directory and run as child
//     processes. Used by the daemon.
//   - *Fake: scriptable in-memory registry for tests.
//
// Implementations serialize process-lifecycle operations (Start, Stop,
// Remove) per uuid, so concurrent callers — the control service and
// the supervisor — cannot interleave inside one operation.
type Registry interface {
	// Status returns the process state for uuid.
	Status(uuid string) (Status, error)

	// StatusAll returns the state of every agent that has been
	// started at least once. Agents installed but never started are
	// not included.
	StatusAll() ([]StatusEntry, error)

	// Start launches the agent process.
	Start(ctx context.Context, uuid string) error

	// Stop terminates the agent process. Stopping an agent that is
	// not running is not an error.
	Stop(ctx context.Context, uuid string) error

	// Remove uninstalls the agent, deleting its artifact, keystore,
	// and data directory. The agent must not be running.
	Remove(ctx context.Context, uuid string) error

	// Install registers the artifact at path under identity and
	// returns the fresh installation uuid. A non-nil keys preserves
	// an existing keystore (upgrade); nil generates a new keypair.
	// Fails if the identity is already installed.
	Install(ctx context.Context, path, identity string, keys *Keypair) (string, error)

	// ListInstalled returns all installed agents.
	ListInstalled() ([]Agent, error)

	// DataDir returns the agent's private data directory, creating it
	// on demand.
	DataDir(uuid string) (string, error)

	// Keystore returns the agent's keypair.
	Keystore(uuid string) (Keypair, error)

	// Tag sets or clears (empty string) the agent's label.
	Tag(uuid, tag string) error

	// SetPriority sets the agent's autostart priority. The value must
	// satisfy ValidPriority.
	SetPriority(uuid, priority string) error
}

// StatusEntry pairs an agent's identity with its process state, as
// reported by StatusAll.
type StatusEntry struct {
	UUID     string
	Name     string
	Identity string
	Status   Status
}
