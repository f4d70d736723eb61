// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/sys/unix"

	"github.com/gbhanda/volttron/lib/clock"
)

// Compile-time interface check.
var _ Registry = (*Local)(nil)

// stopGracePeriod is how long Stop waits after SIGTERM before
// escalating to SIGKILL.
const stopGracePeriod = 5 * time.Second

// Local is a Registry that installs agents under a root directory and
// runs them as child processes.
//
// Layout under root:
//
//	agents/<uuid>/agent.json     metadata
//	agents/<uuid>/keystore.json  curve25519 keypair
//	agents/<uuid>/artifact       the installed artifact, executable
//	agents/<uuid>/agent.log      combined stdout/stderr
//	agents/<uuid>/data/          the agent's private data directory
type Local struct {
	root   string
	clk    clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	procs map[string]*localProcess

	// ops serializes Start, Stop, and Remove per uuid: each holds the
	// agent's operation lock for its full duration, so a supervisor
	// restart and an operator removal cannot interleave mid-operation.
	opsMu sync.Mutex
	ops   map[string]*sync.Mutex
}

// localProcess tracks one started agent process. Exists from the first
// Start until Remove; Status reads it to distinguish running, cleanly
// stopped, and crashed.
type localProcess struct {
	pid      int
	running  bool
	exitCode *int
	done     chan struct{}

	// stopRequested marks an operator-initiated termination: the exit
	// is recorded as clean so the supervisor does not treat it as a
	// crash.
	stopRequested bool
}

// NewLocal creates a local registry rooted at root, creating the
// directory tree if missing.
func NewLocal(root string, clk clock.Clock, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, "agents"), 0o700); err != nil {
		return nil, fmt.Errorf("creating registry root: %w", err)
	}
	return &Local{
		root:   root,
		clk:    clk,
		logger: logger,
		procs:  make(map[string]*localProcess),
		ops:    make(map[string]*sync.Mutex),
	}, nil
}

func (l *Local) agentDir(uuid string) string {
	return filepath.Join(l.root, "agents", uuid)
}

// opLock returns the mutex serializing process-lifecycle operations on
// uuid.
func (l *Local) opLock(uuid string) *sync.Mutex {
	l.opsMu.Lock()
	defer l.opsMu.Unlock()
	m := l.ops[uuid]
	if m == nil {
		m = &sync.Mutex{}
		l.ops[uuid] = m
	}
	return m
}

// Install registers the artifact at path under identity.
func (l *Local) Install(ctx context.Context, path, identity string, keys *Keypair) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("install: identity must not be empty")
	}
	installed, err := l.ListInstalled()
	if err != nil {
		return "", err
	}
	for _, existing := range installed {
		if existing.Identity == identity {
			return "", fmt.Errorf("install: identity %q already installed as %s", identity, existing.UUID)
		}
	}

	id := uuid.NewString()
	dir := l.agentDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating agent directory: %w", err)
	}

	hash, err := copyArtifact(path, filepath.Join(dir, "artifact"))
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	if keys == nil {
		generated, err := generateKeypair()
		if err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		keys = &generated
	}
	if err := writeJSONFile(filepath.Join(dir, "keystore.json"), keys); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	meta := Agent{
		Identity:     identity,
		UUID:         id,
		Name:         filepath.Base(path),
		ArtifactHash: hash,
	}
	if err := writeJSONFile(filepath.Join(dir, "agent.json"), meta); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	l.logger.Info("agent installed",
		"identity", identity,
		"uuid", id,
		"artifact_hash", hash,
	)
	return id, nil
}

// copyArtifact copies the staged artifact into place with execute
// permission, returning its hex BLAKE3 fingerprint.
func copyArtifact(sourcePath, destPath string) (string, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("opening staged artifact: %w", err)
	}
	defer source.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o700)
	if err != nil {
		return "", fmt.Errorf("creating installed artifact: %w", err)
	}

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(dest, hasher), source); err != nil {
		dest.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("copying artifact: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("closing installed artifact: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// generateKeypair produces a fresh curve25519 keypair, base64-encoded.
func generateKeypair() (Keypair, error) {
	secret := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(secret); err != nil {
		return Keypair{}, fmt.Errorf("generating secret key: %w", err)
	}
	public, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return Keypair{}, fmt.Errorf("deriving public key: %w", err)
	}
	return Keypair{
		Public: base64.StdEncoding.EncodeToString(public),
		Secret: base64.StdEncoding.EncodeToString(secret),
	}, nil
}

// Start launches the agent's artifact as a child process with the data
// directory as its working directory.
func (l *Local) Start(ctx context.Context, uuid string) error {
	op := l.opLock(uuid)
	op.Lock()
	defer op.Unlock()

	meta, err := l.readMeta(uuid)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if proc := l.procs[uuid]; proc != nil && proc.running {
		l.mu.Unlock()
		return fmt.Errorf("start %s: already running (pid %d)", uuid, proc.pid)
	}
	l.mu.Unlock()

	dataDir, err := l.DataDir(uuid)
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(l.agentDir(uuid), "agent.log"),
		os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening agent log: %w", err)
	}

	cmd := exec.Command(filepath.Join(l.agentDir(uuid), "artifact"))
	cmd.Dir = dataDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("starting agent %s: %w", meta.Identity, err)
	}

	proc := &localProcess{
		pid:     cmd.Process.Pid,
		running: true,
		done:    make(chan struct{}),
	}
	l.mu.Lock()
	l.procs[uuid] = proc
	l.mu.Unlock()

	l.logger.Info("agent started", "identity", meta.Identity, "uuid", uuid, "pid", proc.pid)

	go func() {
		defer logFile.Close()
		waitErr := cmd.Wait()

		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		} else if waitErr != nil {
			code = -1
		}

		l.mu.Lock()
		if proc.stopRequested {
			code = 0
		}
		proc.running = false
		proc.exitCode = &code
		l.mu.Unlock()
		close(proc.done)

		if code != 0 {
			l.logger.Warn("agent exited abnormally",
				"identity", meta.Identity, "uuid", uuid, "exit_code", code)
		}
	}()
	return nil
}

// Stop terminates the agent with SIGTERM, escalating to SIGKILL after
// the grace period. Stopping a non-running agent is a no-op.
func (l *Local) Stop(ctx context.Context, uuid string) error {
	op := l.opLock(uuid)
	op.Lock()
	defer op.Unlock()

	if _, err := l.readMeta(uuid); err != nil {
		return err
	}

	l.mu.Lock()
	proc := l.procs[uuid]
	if proc == nil || !proc.running {
		l.mu.Unlock()
		return nil
	}
	proc.stopRequested = true
	pid := proc.pid
	done := proc.done
	l.mu.Unlock()

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return fmt.Errorf("signaling agent %s: %w", uuid, err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clk.After(stopGracePeriod):
	}

	l.logger.Warn("agent ignored SIGTERM, escalating", "uuid", uuid, "pid", pid)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("killing agent %s: %w", uuid, err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the process state for uuid. An installed agent that
// was never started reports the zero Status.
func (l *Local) Status(uuid string) (Status, error) {
	if _, err := l.readMeta(uuid); err != nil {
		return Status{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	proc := l.procs[uuid]
	if proc == nil {
		return Status{}, nil
	}
	return Status{PID: proc.pid, Running: proc.running, ExitCode: proc.exitCode}, nil
}

// StatusAll reports every agent started at least once.
func (l *Local) StatusAll() ([]StatusEntry, error) {
	l.mu.Lock()
	started := make(map[string]*localProcess, len(l.procs))
	for id, proc := range l.procs {
		started[id] = proc
	}
	l.mu.Unlock()

	var entries []StatusEntry
	for id, proc := range started {
		meta, err := l.readMeta(id)
		if err != nil {
			// Removed while iterating; skip.
			continue
		}
		l.mu.Lock()
		status := Status{PID: proc.pid, Running: proc.running, ExitCode: proc.exitCode}
		l.mu.Unlock()
		entries = append(entries, StatusEntry{
			UUID:     id,
			Name:     meta.Name,
			Identity: meta.Identity,
			Status:   status,
		})
	}
	return entries, nil
}

// Remove uninstalls the agent. The agent must not be running.
func (l *Local) Remove(ctx context.Context, uuid string) error {
	op := l.opLock(uuid)
	op.Lock()
	defer op.Unlock()

	meta, err := l.readMeta(uuid)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if proc := l.procs[uuid]; proc != nil && proc.running {
		l.mu.Unlock()
		return fmt.Errorf("remove %s: agent is running", uuid)
	}
	delete(l.procs, uuid)
	l.mu.Unlock()

	if err := os.RemoveAll(l.agentDir(uuid)); err != nil {
		return fmt.Errorf("removing agent directory: %w", err)
	}
	l.logger.Info("agent removed", "identity", meta.Identity, "uuid", uuid)
	return nil
}

// ListInstalled returns metadata for every installed agent.
func (l *Local) ListInstalled() ([]Agent, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, "agents"))
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	var agents []Agent
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := l.readMeta(entry.Name())
		if err != nil {
			// Half-installed leftovers are skipped, not fatal.
			continue
		}
		agents = append(agents, meta)
	}
	return agents, nil
}

// DataDir returns the agent's private data directory, creating it on
// demand.
func (l *Local) DataDir(uuid string) (string, error) {
	if _, err := l.readMeta(uuid); err != nil {
		return "", err
	}
	dir := filepath.Join(l.agentDir(uuid), "data")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}

// Keystore returns the agent's keypair.
func (l *Local) Keystore(uuid string) (Keypair, error) {
	if _, err := l.readMeta(uuid); err != nil {
		return Keypair{}, err
	}
	var keys Keypair
	if err := readJSONFile(filepath.Join(l.agentDir(uuid), "keystore.json"), &keys); err != nil {
		return Keypair{}, err
	}
	return keys, nil
}

// Tag sets or clears the agent's label.
func (l *Local) Tag(uuid, tag string) error {
	return l.updateMeta(uuid, func(meta *Agent) { meta.Tag = tag })
}

// SetPriority sets the agent's autostart priority.
func (l *Local) SetPriority(uuid, priority string) error {
	if !ValidPriority(priority) {
		return fmt.Errorf("priority %q: want two digits \"00\"..\"99\" or empty", priority)
	}
	return l.updateMeta(uuid, func(meta *Agent) { meta.Priority = priority })
}

func (l *Local) readMeta(uuid string) (Agent, error) {
	var meta Agent
	err := readJSONFile(filepath.Join(l.agentDir(uuid), "agent.json"), &meta)
	if os.IsNotExist(err) {
		return Agent{}, fmt.Errorf("agent %s: %w", uuid, ErrNotFound)
	}
	return meta, err
}

func (l *Local) updateMeta(uuid string, mutate func(*Agent)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	meta, err := l.readMeta(uuid)
	if err != nil {
		return err
	}
	mutate(&meta)
	return writeJSONFile(filepath.Join(l.agentDir(uuid), "agent.json"), meta)
}

// writeJSONFile writes v atomically: temporary file, then rename, so a
// reader never observes a partial metadata file.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
