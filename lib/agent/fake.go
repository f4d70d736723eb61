// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Compile-time interface check.
var _ Registry = (*Fake)(nil)

// Fake is a scriptable in-memory Registry for tests. Statuses are set
// directly with SetStatus; Start and Stop failures are injected with
// FailStart and FailStop. Data directories are real directories under
// the configured root so backup/restore paths exercise actual files.
type Fake struct {
	mu       sync.Mutex
	dataRoot string
	agents   map[string]*fakeAgent
	nextPID  int

	startErr  map[string]error
	stopErr   map[string]error
	statusErr map[string]error
	listErr   error

	// StartCalls and StopCalls record uuids in call order.
	StartCalls []string
	StopCalls  []string
}

type fakeAgent struct {
	meta    Agent
	keys    Keypair
	status  Status
	started bool
}

// NewFake creates an empty fake registry. dataRoot backs DataDir; use
// t.TempDir().
func NewFake(dataRoot string) *Fake {
	return &Fake{
		dataRoot: dataRoot,
		agents:   make(map[string]*fakeAgent),
		nextPID:  1000,
		startErr:  make(map[string]error),
		stopErr:   make(map[string]error),
		statusErr: make(map[string]error),
	}
}

// AddAgent installs an agent directly, returning its uuid.
func (f *Fake) AddAgent(identity, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.agents[id] = &fakeAgent{
		meta: Agent{Identity: identity, UUID: id, Name: name},
		keys: Keypair{Public: "pub-" + id, Secret: "sec-" + id},
	}
	return id
}

// SetStatus scripts the agent's process state and marks it as started
// at least once, making it visible to StatusAll.
func (f *Fake) SetStatus(uuid string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a := f.agents[uuid]; a != nil {
		a.status = status
		a.started = true
	}
}

// SetCrashed scripts a crashed state with the given exit code.
func (f *Fake) SetCrashed(uuid string, exitCode int) {
	f.SetStatus(uuid, Status{PID: 1, Running: false, ExitCode: &exitCode})
}

// FailStart makes Start for uuid fail with err until cleared with a
// nil err.
func (f *Fake) FailStart(uuid string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.startErr, uuid)
		return
	}
	f.startErr[uuid] = err
}

// FailStatus makes Status for uuid fail with err until cleared with a
// nil err.
func (f *Fake) FailStatus(uuid string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.statusErr, uuid)
		return
	}
	f.statusErr[uuid] = err
}

// FailList makes ListInstalled fail with err until cleared with nil.
func (f *Fake) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailStop makes Stop for uuid fail with err.
func (f *Fake) FailStop(uuid string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.stopErr, uuid)
		return
	}
	f.stopErr[uuid] = err
}

func (f *Fake) Status(uuid string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[uuid]; err != nil {
		return Status{}, err
	}
	a := f.agents[uuid]
	if a == nil {
		return Status{}, fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	return a.status, nil
}

func (f *Fake) StatusAll() ([]StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []StatusEntry
	for id, a := range f.agents {
		if !a.started {
			continue
		}
		entries = append(entries, StatusEntry{
			UUID:     id,
			Name:     a.meta.Name,
			Identity: a.meta.Identity,
			Status:   a.status,
		})
	}
	return entries, nil
}

func (f *Fake) Start(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StartCalls = append(f.StartCalls, uuid)
	a := f.agents[uuid]
	if a == nil {
		return fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	if err := f.startErr[uuid]; err != nil {
		return err
	}
	f.nextPID++
	a.status = Status{PID: f.nextPID, Running: true}
	a.started = true
	return nil
}

func (f *Fake) Stop(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StopCalls = append(f.StopCalls, uuid)
	a := f.agents[uuid]
	if a == nil {
		return fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	if err := f.stopErr[uuid]; err != nil {
		return err
	}
	if a.status.Running {
		clean := 0
		a.status = Status{PID: a.status.PID, Running: false, ExitCode: &clean}
	}
	return nil
}

func (f *Fake) Remove(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.agents[uuid]
	if a == nil {
		return fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	if a.status.Running {
		return fmt.Errorf("remove %s: agent is running", uuid)
	}
	delete(f.agents, uuid)
	return os.RemoveAll(filepath.Join(f.dataRoot, uuid))
}

func (f *Fake) Install(_ context.Context, path, identity string, keys *Keypair) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.agents {
		if a.meta.Identity == identity {
			return "", fmt.Errorf("install: identity %q already installed as %s", identity, a.meta.UUID)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("staged artifact: %w", err)
	}

	id := uuid.NewString()
	pair := Keypair{Public: "pub-" + id, Secret: "sec-" + id}
	if keys != nil {
		pair = *keys
	}
	f.agents[id] = &fakeAgent{
		meta: Agent{Identity: identity, UUID: id, Name: filepath.Base(path)},
		keys: pair,
	}
	return id, nil
}

func (f *Fake) ListInstalled() ([]Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	var agents []Agent
	for _, a := range f.agents {
		agents = append(agents, a.meta)
	}
	return agents, nil
}

func (f *Fake) DataDir(uuid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.agents[uuid] == nil {
		return "", fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	dir := filepath.Join(f.dataRoot, uuid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func (f *Fake) Keystore(uuid string) (Keypair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.agents[uuid]
	if a == nil {
		return Keypair{}, fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	return a.keys, nil
}

func (f *Fake) Tag(uuid, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.agents[uuid]
	if a == nil {
		return fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	a.meta.Tag = tag
	return nil
}

func (f *Fake) SetPriority(uuid, priority string) error {
	if !ValidPriority(priority) {
		return fmt.Errorf("priority %q: want two digits \"00\"..\"99\" or empty", priority)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.agents[uuid]
	if a == nil {
		return fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	a.meta.Priority = priority
	return nil
}
