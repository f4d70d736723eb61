// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gbhanda/volttron/lib/agent"
	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/clock"
	"github.com/gbhanda/volttron/lib/transfer"
)

func newService(t *testing.T) (*Service, *agent.Fake) {
	t.Helper()
	registry := agent.NewFake(t.TempDir())
	svc := New(registry, clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, registry
}

// serveArtifact streams content over the returned channel's peer on a
// background goroutine, as a remote peer would.
func serveArtifact(t *testing.T, content []byte) channel.Channel {
	t.Helper()
	local, remote := channel.Pair(clock.Real(), 4)
	go func() {
		// The receiver tears the session down; a closed-channel error
		// here just means it finished or aborted first.
		_ = transfer.Send(context.Background(), remote, bytes.NewReader(content), transfer.SendConfig{})
	}()
	t.Cleanup(func() { local.Close() })
	return local
}

func randomArtifact(t *testing.T, n int) []byte {
	t.Helper()
	content := make([]byte, n)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}
	return content
}

func TestInstallAgentFresh(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	content := randomArtifact(t, 3000)
	id, err := svc.InstallAgent(ctx, "platform.historian", serveArtifact(t, content), InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}

	agents, err := svc.ListAgents()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].UUID != id || agents[0].Identity != "platform.historian" {
		t.Fatalf("ListAgents = %+v, want the new install", agents)
	}
	uuid, exists, err := svc.IdentityExists("platform.historian")
	if err != nil {
		t.Fatal(err)
	}
	if !exists || uuid != id {
		t.Errorf("IdentityExists = (%q, %v), want (%q, true)", uuid, exists, id)
	}

	// A fresh install generates a keypair.
	keys, err := registry.Keystore(id)
	if err != nil {
		t.Fatal(err)
	}
	if keys.Public == "" || keys.Secret == "" {
		t.Error("fresh install has no keypair")
	}
}

func TestInstallConflictLeavesRegistryUntouched(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	existing := registry.AddAgent("platform.historian", "historian")

	_, err := svc.InstallAgent(ctx, "platform.historian", serveArtifact(t, randomArtifact(t, 100)), InstallOptions{})
	if !errors.Is(err, ErrIdentityConflict) {
		t.Fatalf("InstallAgent = %v, want ErrIdentityConflict", err)
	}

	agents, err := svc.ListAgents()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].UUID != existing {
		t.Fatalf("registry changed on conflict: %+v", agents)
	}
}

func TestInstallClosesChannelOnPreTransferFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("registry lookup failure", func(t *testing.T) {
		svc, registry := newService(t)
		registry.FailList(errors.New("registry offline"))

		local, remote := channel.Pair(clock.Real(), 1)
		if _, err := svc.InstallAgent(ctx, "x", local, InstallOptions{}); err == nil {
			t.Fatal("install succeeded with the registry offline")
		}
		if err := remote.Send(ctx, []byte("ping")); !errors.Is(err, channel.ErrClosed) {
			t.Fatalf("peer Send after aborted install = %v, want ErrClosed", err)
		}
	})

	t.Run("identity conflict", func(t *testing.T) {
		svc, registry := newService(t)
		registry.AddAgent("x", "x")

		local, remote := channel.Pair(clock.Real(), 1)
		if _, err := svc.InstallAgent(ctx, "x", local, InstallOptions{}); !errors.Is(err, ErrIdentityConflict) {
			t.Fatalf("InstallAgent = %v, want ErrIdentityConflict", err)
		}
		if err := remote.Send(ctx, []byte("ping")); !errors.Is(err, channel.ErrClosed) {
			t.Fatalf("peer Send after refused install = %v, want ErrClosed", err)
		}
	})
}

func TestForceReinstallPreservesKeysAndData(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	oldUUID := registry.AddAgent("platform.historian", "historian")
	registry.SetStatus(oldUUID, agent.Status{PID: 9, Running: true})
	oldKeys, err := registry.Keystore(oldUUID)
	if err != nil {
		t.Fatal(err)
	}
	dataDir, err := registry.DataDir(oldUUID)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "history.db"), []byte("rows"), 0o600); err != nil {
		t.Fatal(err)
	}

	newUUID, err := svc.InstallAgent(ctx, "platform.historian",
		serveArtifact(t, randomArtifact(t, 5000)), InstallOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if newUUID == oldUUID {
		t.Fatal("forced reinstall reused the old uuid")
	}

	if _, err := registry.Status(oldUUID); !errors.Is(err, agent.ErrNotFound) {
		t.Errorf("old agent still present: %v", err)
	}

	newKeys, err := registry.Keystore(newUUID)
	if err != nil {
		t.Fatal(err)
	}
	if newKeys != oldKeys {
		t.Error("keypair not preserved across forced reinstall")
	}

	newDataDir, err := registry.DataDir(newUUID)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := os.ReadFile(filepath.Join(newDataDir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "rows" {
		t.Errorf("restored data = %q, want %q", restored, "rows")
	}

	// The running old agent was stopped before removal.
	if len(registry.StopCalls) != 1 || registry.StopCalls[0] != oldUUID {
		t.Errorf("StopCalls = %v, want one stop of the old agent", registry.StopCalls)
	}
}

func TestInstallAbortsOnTransferFailure(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	oldUUID := registry.AddAgent("platform.historian", "historian")

	// The peer vanishes immediately: staging fails before any registry
	// mutation, even with force set.
	local, remote := channel.Pair(clock.Real(), 1)
	remote.Close()

	_, err := svc.InstallAgent(ctx, "platform.historian", local, InstallOptions{Force: true})
	if err == nil {
		t.Fatal("install succeeded over a dead channel")
	}

	agents, err := svc.ListAgents()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].UUID != oldUUID {
		t.Fatalf("registry mutated by failed install: %+v", agents)
	}
}

func TestSendAgentRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	content := randomArtifact(t, 4096)
	path := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	local, remote := channel.Pair(clock.Real(), 4)
	errCh := make(chan error, 1)
	go func() { errCh <- svc.SendAgent(ctx, remote, path) }()

	var received bytes.Buffer
	_, size, err := transfer.Receive(ctx, local, &received, transfer.ReceiveConfig{ChunkSize: 512})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if size != int64(len(content)) || !bytes.Equal(received.Bytes(), content) {
		t.Fatalf("received %d bytes, want %d identical bytes", size, len(content))
	}
}

func TestLifecycleOperations(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	id := registry.AddAgent("platform.driver", "driver")

	if err := svc.StartAgent(ctx, id); err != nil {
		t.Fatal(err)
	}
	status, err := svc.AgentStatus(id)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running {
		t.Fatal("agent not running after StartAgent")
	}

	if err := svc.RestartAgent(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got := registry.StartCalls; len(got) != 2 {
		t.Fatalf("StartCalls = %v, want start + restart", got)
	}

	if err := svc.TagAgent(id, "primary"); err != nil {
		t.Fatal(err)
	}
	if err := svc.PrioritizeAgent(id, "10"); err != nil {
		t.Fatal(err)
	}
	if err := svc.PrioritizeAgent(id, "7"); err == nil {
		t.Error("single-digit priority accepted")
	}

	// RemoveAgent stops the running agent first.
	if err := svc.RemoveAgent(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AgentStatus(id); !errors.Is(err, agent.ErrNotFound) {
		t.Fatalf("AgentStatus after remove = %v, want ErrNotFound", err)
	}
}

func TestRemoveStoppedAgent(t *testing.T) {
	svc, registry := newService(t)
	ctx := context.Background()

	id := registry.AddAgent("idle", "idle")
	if err := svc.RemoveAgent(ctx, id); err != nil {
		t.Fatal(err)
	}
	if len(registry.StopCalls) != 0 {
		t.Errorf("RemoveAgent stopped an agent that was not running")
	}
}
