// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gbhanda/volttron/lib/agent"
	"github.com/gbhanda/volttron/lib/backup"
	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/transfer"
)

// InstallOptions tunes one InstallAgent call.
type InstallOptions struct {
	// Force replaces an existing installation under the same identity.
	// The old agent's data directory and keypair carry over.
	Force bool

	// Transfer tunes the artifact download session.
	Transfer transfer.ReceiveConfig
}

// InstallAgent downloads an artifact over ch and installs it under
// identity, returning the fresh installation's uuid.
//
// The artifact is staged and checksum-verified in a private temp
// directory before the registry is touched: a failed or corrupt
// transfer leaves every installed agent exactly as it was. Only after
// staging succeeds does a forced reinstall stop and remove the old
// agent, install the new one under the preserved keypair, and restore
// the old data directory into the new installation.
func (s *Service) InstallAgent(ctx context.Context, identity string, ch channel.Channel, opts InstallOptions) (string, error) {
	l := s.lockFor("identity/" + identity)
	l.Lock()
	defer l.Unlock()

	oldUUID, exists, err := s.IdentityExists(identity)
	if err != nil {
		ch.Close()
		return "", fmt.Errorf("install %s: %w", identity, err)
	}
	if exists && !opts.Force {
		ch.Close()
		return "", fmt.Errorf("install %s (installed as %s): %w", identity, oldUUID, ErrIdentityConflict)
	}

	stageDir, err := os.MkdirTemp("", "volttron-install-")
	if err != nil {
		ch.Close()
		return "", fmt.Errorf("install %s: staging: %w", identity, err)
	}
	defer os.RemoveAll(stageDir)

	artifactPath, err := s.stageArtifact(ctx, ch, stageDir, opts.Transfer)
	if err != nil {
		return "", fmt.Errorf("install %s: %w", identity, err)
	}

	var keys *agent.Keypair
	var snapshotPath string
	if exists {
		keys, snapshotPath, err = s.retireOldAgent(ctx, oldUUID, stageDir)
		if err != nil {
			return "", fmt.Errorf("install %s: %w", identity, err)
		}
	}

	newUUID, err := s.registry.Install(ctx, artifactPath, identity, keys)
	if err != nil {
		if exists {
			// The old installation is already gone; there is no way to
			// put it back from here.
			s.logger.Error("reinstall failed after removal; identity is now uninstalled",
				"identity", identity, "old_uuid", oldUUID, "error", err)
		}
		return "", fmt.Errorf("install %s: %w", identity, err)
	}

	if snapshotPath != "" {
		dataDir, err := s.registry.DataDir(newUUID)
		if err != nil {
			return newUUID, fmt.Errorf("install %s: data dir: %w", identity, err)
		}
		if err := backup.Restore(snapshotPath, dataDir); err != nil {
			return newUUID, fmt.Errorf("install %s: restoring data: %w", identity, err)
		}
	}

	s.logger.Info("agent installed", "identity", identity, "uuid", newUUID, "replaced", exists)
	return newUUID, nil
}

// stageArtifact pulls the artifact over ch into stageDir and returns
// its path. The channel is closed by the transfer on every exit path.
func (s *Service) stageArtifact(ctx context.Context, ch channel.Channel, stageDir string, cfg transfer.ReceiveConfig) (string, error) {
	path := filepath.Join(stageDir, "artifact")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o700)
	if err != nil {
		return "", fmt.Errorf("staging artifact: %w", err)
	}

	digest, size, err := transfer.Receive(ctx, ch, f, cfg)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("downloading artifact: %w", err)
	}

	s.logger.Debug("artifact staged",
		"bytes", size, "sha512", hex.EncodeToString(digest))
	return path, nil
}

// retireOldAgent captures the old installation's keypair, snapshots
// its data directory into stageDir, stops it if running, and removes
// it.
func (s *Service) retireOldAgent(ctx context.Context, uuid, stageDir string) (*agent.Keypair, string, error) {
	keys, err := s.registry.Keystore(uuid)
	if err != nil {
		return nil, "", fmt.Errorf("capturing keystore of %s: %w", uuid, err)
	}

	dataDir, err := s.registry.DataDir(uuid)
	if err != nil {
		return nil, "", fmt.Errorf("data dir of %s: %w", uuid, err)
	}
	snapshotPath := filepath.Join(stageDir, "data.tar.gz")
	if err := backup.Create(dataDir, snapshotPath); err != nil {
		return nil, "", fmt.Errorf("snapshotting data of %s: %w", uuid, err)
	}

	status, err := s.registry.Status(uuid)
	if err != nil {
		return nil, "", err
	}
	if status.Running {
		if err := s.registry.Stop(ctx, uuid); err != nil {
			return nil, "", fmt.Errorf("stopping %s: %w", uuid, err)
		}
	}
	if err := s.registry.Remove(ctx, uuid); err != nil {
		return nil, "", fmt.Errorf("removing %s: %w", uuid, err)
	}
	return &keys, snapshotPath, nil
}

// SendAgent serves the artifact file at path over ch, answering the
// remote receiver's fetch and checksum requests until the whole file
// has been transmitted.
func (s *Service) SendAgent(ctx context.Context, ch channel.Channel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("send agent: %w", err)
	}
	defer f.Close()

	if err := transfer.Send(ctx, ch, f, transfer.SendConfig{}); err != nil {
		return fmt.Errorf("send agent %s: %w", filepath.Base(path), err)
	}
	return nil
}
