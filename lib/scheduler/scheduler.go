// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs periodic and one-shot callbacks on an
// injected clock. The supervisor uses it for its health poll and for
// delayed restart attempts.
package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gbhanda/volttron/lib/clock"
)

// Scheduler owns a set of pending tasks. Stop cancels all of them.
type Scheduler struct {
	clk    clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	nextID  int
	tasks   map[int]*Task
}

// Task is a scheduled callback. Cancel prevents future runs; a
// callback already executing is not interrupted.
type Task struct {
	cancel func()
	once   sync.Once
}

// Cancel stops the task. Safe to call more than once.
func (t *Task) Cancel() { t.once.Do(t.cancel) }

// New creates an empty scheduler.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clk:    clk,
		logger: logger,
		tasks:  make(map[int]*Task),
	}
}

// Every runs fn every interval until the task or the scheduler is
// stopped. The first run happens one interval from now.
func (s *Scheduler) Every(interval time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return &Task{cancel: func() {}}
	}

	ticker := s.clk.NewTicker(interval)
	done := make(chan struct{})
	id := s.nextID
	s.nextID++

	task := &Task{cancel: func() {
		ticker.Stop()
		close(done)
		s.forget(id)
	}}
	s.tasks[id] = task

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return task
}

// At runs fn once at the given time. A time at or before now runs fn
// immediately on the calling goroutine.
func (s *Scheduler) At(when time.Time, fn func()) *Task {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return &Task{cancel: func() {}}
	}
	id := s.nextID
	s.nextID++
	delay := when.Sub(s.clk.Now())
	s.mu.Unlock()

	var fired atomic.Bool
	timer := s.clk.AfterFunc(delay, func() {
		fired.Store(true)
		s.forget(id)
		fn()
	})

	// Publish the task only with its cancel fully assigned, so a
	// concurrent Stop never observes a half-built Task.
	task := &Task{cancel: func() {
		timer.Stop()
		s.forget(id)
	}}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		timer.Stop()
		return &Task{cancel: func() {}}
	}
	if !fired.Load() {
		s.tasks[id] = task
	}
	s.mu.Unlock()
	return task
}

// Stop cancels every pending task. The scheduler accepts no new work
// afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	pending := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}
	s.logger.Debug("scheduler stopped", "cancelled", len(pending))
}

func (s *Scheduler) forget(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}
