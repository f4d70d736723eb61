// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is the management surface of the platform: install,
// upgrade, lifecycle, and labeling operations over a registry of
// agents.
//
// Mutating operations against the same agent are serialized by a
// per-key lock, so a restart cannot interleave with a removal and a
// forced reinstall cannot race a second install of the same identity.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gbhanda/volttron/lib/agent"
	"github.com/gbhanda/volttron/lib/clock"
)

// ErrIdentityConflict is returned by InstallAgent when the identity is
// already installed and force was not set.
var ErrIdentityConflict = errors.New("control: identity already installed")

// Service exposes the control operations. All methods are safe for
// concurrent use.
type Service struct {
	registry agent.Registry
	clk      clock.Clock
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a control service over registry.
func New(registry agent.Registry, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		clk:      clk,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing operations under key — an
// agent uuid, or an identity during install.
func (s *Service) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// ListAgents returns all installed agents ordered by identity.
func (s *Service) ListAgents() ([]agent.Agent, error) {
	agents, err := s.registry.ListInstalled()
	if err != nil {
		return nil, err
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Identity < agents[j].Identity })
	return agents, nil
}

// AgentStatus returns the process state of one agent.
func (s *Service) AgentStatus(uuid string) (agent.Status, error) {
	return s.registry.Status(uuid)
}

// IdentityExists reports whether identity is installed, and under
// which uuid.
func (s *Service) IdentityExists(identity string) (string, bool, error) {
	agents, err := s.registry.ListInstalled()
	if err != nil {
		return "", false, err
	}
	for _, a := range agents {
		if a.Identity == identity {
			return a.UUID, true, nil
		}
	}
	return "", false, nil
}

// StartAgent launches the agent.
func (s *Service) StartAgent(ctx context.Context, uuid string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()
	return s.registry.Start(ctx, uuid)
}

// StopAgent terminates the agent. Stopping a stopped agent is a no-op.
func (s *Service) StopAgent(ctx context.Context, uuid string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()
	return s.registry.Stop(ctx, uuid)
}

// RestartAgent stops then starts the agent.
func (s *Service) RestartAgent(ctx context.Context, uuid string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()

	if err := s.registry.Stop(ctx, uuid); err != nil {
		return fmt.Errorf("restart %s: %w", uuid, err)
	}
	return s.registry.Start(ctx, uuid)
}

// RemoveAgent uninstalls the agent, stopping it first if running.
func (s *Service) RemoveAgent(ctx context.Context, uuid string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()

	status, err := s.registry.Status(uuid)
	if err != nil {
		return err
	}
	if status.Running {
		if err := s.registry.Stop(ctx, uuid); err != nil {
			return fmt.Errorf("remove %s: %w", uuid, err)
		}
	}
	return s.registry.Remove(ctx, uuid)
}

// TagAgent sets or clears the agent's label.
func (s *Service) TagAgent(uuid, tag string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()
	return s.registry.Tag(uuid, tag)
}

// PrioritizeAgent sets the agent's autostart priority: two digits
// "00".."99", or empty to disable autostart.
func (s *Service) PrioritizeAgent(uuid, priority string) error {
	l := s.lockFor(uuid)
	l.Lock()
	defer l.Unlock()
	return s.registry.SetPriority(uuid, priority)
}
