// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Volttron-control is the platform control daemon. It owns the agent
// registry rooted under --root-dir, autostarts prioritized agents at
// boot, and supervises running agents: an agent that crashes is
// restarted with a growing backoff, and an agent that keeps crashing
// raises an alert on the platform bus.
//
// On startup:
//  1. Loads the YAML configuration (flags override the file).
//  2. Opens the local agent registry.
//  3. Starts installed agents that have an autostart priority, lowest
//     value first.
//  4. Registers the supervisor's health sweep with the scheduler.
//  5. Runs until SIGINT or SIGTERM, then shuts the scheduler down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gbhanda/volttron/lib/agent"
	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/clock"
	"github.com/gbhanda/volttron/lib/codec"
	"github.com/gbhanda/volttron/lib/config"
	"github.com/gbhanda/volttron/lib/control"
	"github.com/gbhanda/volttron/lib/scheduler"
	"github.com/gbhanda/volttron/lib/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		rootDir    string
		logLevel   string
	)

	pflag.StringVar(&configPath, "config", "", "path to the YAML configuration file")
	pflag.StringVar(&rootDir, "root-dir", "", "agent installation root (overrides the config file)")
	pflag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides the config file)")
	pflag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if rootDir != "" {
		cfg.RootDir = rootDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	registry, err := agent.NewLocal(cfg.RootDir, clk, logger)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}

	bus := channel.NewBus()
	defer bus.Close()

	// Surface bus alerts in the daemon log so they are visible even
	// with no other subscriber attached.
	cancelAlertLog, err := bus.Subscribe(control.DefaultAlertTopic, func(payload []byte) {
		var alert control.Alert
		if err := codec.Unmarshal(payload, &alert); err != nil {
			logger.Warn("undecodable alert on bus", "error", err)
			return
		}
		logger.Warn("agent alert", "key", alert.Key, "message", alert.Message)
	})
	if err != nil {
		return fmt.Errorf("subscribing to alerts: %w", err)
	}
	defer cancelAlertLog()

	sched := scheduler.New(clk, logger)
	defer sched.Stop()

	svc := control.New(registry, clk, logger)
	if err := autostart(ctx, svc, logger); err != nil {
		return err
	}

	alerter := control.NewBusAlerter(bus, "", clk)
	sup := supervisor.New(registry, alerter, sched, clk, logger, supervisor.Config{
		AttemptBudget: cfg.Supervisor.AttemptBudget,
		BackoffStep:   cfg.Supervisor.BackoffStep.Std(),
	})
	sched.Every(cfg.Supervisor.PollInterval.Std(), func() { sup.Poll(ctx) })

	logger.Info("control daemon started",
		"root_dir", cfg.RootDir,
		"poll_interval", cfg.Supervisor.PollInterval.Std())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// autostart launches every installed agent that carries an autostart
// priority, lowest value first. A start failure is logged and does not
// block the remaining agents; the supervisor picks up the pieces.
func autostart(ctx context.Context, svc *control.Service, logger *slog.Logger) error {
	agents, err := svc.ListAgents()
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	var prioritized []agent.Agent
	for _, a := range agents {
		if a.Priority != "" {
			prioritized = append(prioritized, a)
		}
	}
	// Two-digit priorities order correctly as strings.
	sort.Slice(prioritized, func(i, j int) bool {
		return prioritized[i].Priority < prioritized[j].Priority
	})

	for _, a := range prioritized {
		if err := svc.StartAgent(ctx, a.UUID); err != nil {
			logger.Error("autostart failed",
				"identity", a.Identity, "uuid", a.UUID, "error", err)
			continue
		}
		logger.Info("agent autostarted",
			"identity", a.Identity, "uuid", a.UUID, "priority", a.Priority)
	}
	return nil
}
