// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor watches installed agents and restarts the ones
// that crash.
//
// A periodic Poll inspects every agent that has been started at least
// once. Each poll that finds an agent crashed schedules one restart
// attempt, with a linearly growing delay: the first attempt fires
// immediately, the second five minutes after its poll, and so on.
// When the attempt budget is spent an alert goes out and the crash
// record is dropped, so a later crash of the same agent starts a fresh
// cycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gbhanda/volttron/lib/agent"
	"github.com/gbhanda/volttron/lib/clock"
	"github.com/gbhanda/volttron/lib/scheduler"
)

// Alerter delivers operator notifications. Delivery is fire-and-forget
// from the supervisor's point of view; failures are logged and
// swallowed.
type Alerter interface {
	SendAlert(ctx context.Context, key, message string) error
}

// Config tunes the restart policy.
type Config struct {
	// AttemptBudget is how many restarts are tried before alerting.
	AttemptBudget int

	// BackoffStep is the delay increment between successive attempts.
	// Attempt n fires n*BackoffStep after the poll that scheduled it.
	BackoffStep time.Duration
}

// DefaultConfig returns the stock policy: five attempts, five minutes
// apart.
func DefaultConfig() Config {
	return Config{AttemptBudget: 5, BackoffStep: 5 * time.Minute}
}

// Supervisor tracks crashed agents and drives their restart attempts.
type Supervisor struct {
	registry agent.Registry
	alerter  Alerter
	sched    *scheduler.Scheduler
	clk      clock.Clock
	logger   *slog.Logger
	cfg      Config

	mu sync.Mutex
	// attempts maps uuid to the last restart attempt scheduled for it.
	// No entry means the agent is not under crash supervision.
	attempts map[string]int
}

// New creates a supervisor. It owns no goroutines; the caller
// registers Poll with the scheduler at whatever cadence it wants.
func New(registry agent.Registry, alerter Alerter, sched *scheduler.Scheduler, clk clock.Clock, logger *slog.Logger, cfg Config) *Supervisor {
	if cfg.AttemptBudget <= 0 {
		cfg.AttemptBudget = DefaultConfig().AttemptBudget
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = DefaultConfig().BackoffStep
	}
	return &Supervisor{
		registry: registry,
		alerter:  alerter,
		sched:    sched,
		clk:      clk,
		logger:   logger,
		cfg:      cfg,
		attempts: make(map[string]int),
	}
}

// Poll sweeps agent statuses once. Each crashed agent either gets a
// restart attempt scheduled or, when the budget is spent, an alert.
// Errors are logged per agent and never abort the sweep.
func (s *Supervisor) Poll(ctx context.Context) {
	entries, err := s.registry.StatusAll()
	if err != nil {
		s.logger.Error("status sweep failed", "error", err)
		return
	}

	for _, entry := range entries {
		if !entry.Status.Crashed() {
			continue
		}
		s.handleCrash(ctx, entry)
	}
}

func (s *Supervisor) handleCrash(ctx context.Context, entry agent.StatusEntry) {
	s.mu.Lock()
	attempt, seen := s.attempts[entry.UUID]
	if !seen {
		attempt = -1
	}
	attempt++

	if attempt >= s.cfg.AttemptBudget {
		delete(s.attempts, entry.UUID)
		s.mu.Unlock()

		s.logger.Error("restart budget spent",
			"agent", entry.Name, "uuid", entry.UUID, "attempts", attempt)
		message := fmt.Sprintf("agent %s (%s) has stopped and failed to restart after %d attempts",
			entry.Name, entry.UUID, attempt)
		if err := s.alerter.SendAlert(ctx, entry.Name, message); err != nil {
			s.logger.Warn("alert delivery failed", "agent", entry.Name, "error", err)
		}
		return
	}

	s.attempts[entry.UUID] = attempt
	s.mu.Unlock()

	delay := time.Duration(attempt) * s.cfg.BackoffStep
	when := s.clk.Now().Add(delay)
	s.logger.Info("scheduling restart",
		"agent", entry.Name, "uuid", entry.UUID, "attempt", attempt, "delay", delay)
	s.sched.At(when, func() { s.restart(ctx, entry.UUID, entry.Name) })
}

// restart is the deferred attempt body. The status is rechecked first:
// the agent may have recovered, or an operator may have removed it.
func (s *Supervisor) restart(ctx context.Context, uuid, name string) {
	status, err := s.registry.Status(uuid)
	if err != nil {
		// Only an uninstalled agent retires the crash record; a
		// transient registry error keeps the attempt count.
		if errors.Is(err, agent.ErrNotFound) {
			s.forget(uuid)
		}
		s.logger.Warn("restart skipped", "agent", name, "uuid", uuid, "error", err)
		return
	}
	if !status.Crashed() {
		s.forget(uuid)
		return
	}

	if err := s.registry.Stop(ctx, uuid); err != nil {
		s.logger.Warn("pre-restart stop failed", "agent", name, "uuid", uuid, "error", err)
		return
	}
	if err := s.registry.Start(ctx, uuid); err != nil {
		s.logger.Warn("restart failed", "agent", name, "uuid", uuid, "error", err)
		return
	}

	s.logger.Info("agent restarted", "agent", name, "uuid", uuid)
	s.forget(uuid)
}

func (s *Supervisor) forget(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, uuid)
}
