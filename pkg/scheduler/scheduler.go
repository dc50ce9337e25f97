// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/telemetry"
)

// Runner executes one turn. Satisfied by the execution engine.
type Runner interface {
	RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error)
}

// Scheduler fires stored tasks when their schedule comes due. Each
// activation runs exactly one turn on the task's own thread; a task whose
// previous run is still in flight is skipped, not queued.
type Scheduler struct {
	tasks   Store
	agents  agents.Store
	runner  Runner
	tracer  trace.Tracer
	turnTTL time.Duration

	mu        sync.Mutex
	lastFired map[string]time.Time
	inFlight  map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes the scheduler.
type Option func(*Scheduler)

// WithTurnTimeout bounds each autonomous turn.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.turnTTL = d
		}
	}
}

func New(tasks Store, agentStore agents.Store, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:     tasks,
		agents:    agentStore,
		runner:    runner,
		tracer:    otel.Tracer("praxis/scheduler"),
		turnTTL:   5 * time.Minute,
		lastFired: make(map[string]time.Time),
		inFlight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the tick loop until Stop is called.
func (s *Scheduler) Start(interval time.Duration) {
	if interval <= 0 {
		slog.Info("scheduler.disabled", "interval", interval)
		return
	}
	if s.cancel != nil {
		s.Stop()
	}
	initSchedulerMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("scheduler.start", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler.stop")
				return
			case now := <-ticker.C:
				s.Tick(ctx, now)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit. Turns already in
// flight keep running on their own contexts.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.done != nil {
		<-s.done
	}
	s.cancel = nil
	s.done = nil
}

// Tick fires every task that came due since its last activation. A stored
// task always runs; deleting it is the only way to stop it.
// Calling Tick twice with the same now fires nothing the second time: a
// task's due slot is consumed when it fires. Missed slots collapse into one
// activation.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler.tick.list_failed", "error", err)
		return
	}

	for _, task := range tasks {
		sched, err := ParseSchedule(task.Schedule)
		if err != nil {
			slog.WarnContext(ctx, "scheduler.task.bad_schedule",
				"task_id", task.ID, "schedule", task.Schedule, "error", err)
			continue
		}

		s.mu.Lock()
		last, seen := s.lastFired[task.ID]
		if !seen {
			// First sight of the task: anchor to now so it fires on its
			// next slot, not retroactively.
			s.lastFired[task.ID] = now
			s.mu.Unlock()
			continue
		}
		due := sched.Next(last)
		if due.After(now) {
			s.mu.Unlock()
			continue
		}
		if s.inFlight[task.ID] {
			s.mu.Unlock()
			slog.InfoContext(ctx, "scheduler.tick.skip",
				"task_id", task.ID, "reason", "previous run still in flight")
			if overlapCounter != nil {
				overlapCounter.Add(ctx, 1, metric.WithAttributes(
					telemetry.TaskAttributes(task.AgentID, task.ID, task.Schedule)...))
			}
			continue
		}
		s.inFlight[task.ID] = true
		s.lastFired[task.ID] = now
		s.mu.Unlock()

		go s.fire(*task)
	}
}

// Trigger runs a task immediately, outside its schedule. A task already in
// flight is not run twice.
func (s *Scheduler) Trigger(ctx context.Context, taskID string) error {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		return errors.New(errors.CodeSchedulerOverlap, "task is already running", nil).
			WithContext("task_id", task.ID)
	}
	s.inFlight[task.ID] = true
	s.lastFired[task.ID] = time.Now()
	s.mu.Unlock()

	s.fire(*task)
	return nil
}

// fire runs one autonomous turn for the task. It runs on a detached context
// so a scheduler shutdown does not sever an in-flight turn.
func (s *Scheduler) fire(task Task) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, task.ID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.turnTTL)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.task.run",
		trace.WithAttributes(telemetry.TaskAttributes(task.AgentID, task.ID, task.Schedule)...))
	defer span.End()

	agent, err := s.agents.Get(ctx, task.AgentID)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler.task.agent_missing",
			"task_id", task.ID, "agent_id", task.AgentID, "error", err)
		return
	}

	start := time.Now()
	slog.InfoContext(ctx, "scheduler.task.start",
		"task_id", task.ID, "agent_id", task.AgentID, "schedule", task.Schedule)

	result, err := s.runner.RunTurn(ctx, core.TurnRequest{
		AgentID: task.AgentID,
		ChatKey: core.AutonomousChatID(task.ID),
		Caller:  core.Caller{ID: agent.Owner, Channel: "scheduler"},
		Content: task.Prompt,
		Task: &core.TaskContext{
			TaskID:   task.ID,
			Name:     task.Name,
			Schedule: task.Schedule,
		},
	})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "scheduler.task.error",
			"task_id", task.ID, "agent_id", task.AgentID,
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		if taskErrorCounter != nil {
			taskErrorCounter.Add(ctx, 1, metric.WithAttributes(
				telemetry.TaskAttributes(task.AgentID, task.ID, task.Schedule)...))
		}
		return
	}

	slog.InfoContext(ctx, "scheduler.task.done",
		"task_id", task.ID, "agent_id", task.AgentID,
		"steps", result.Steps,
		"duration_ms", time.Since(start).Milliseconds())
	if taskRunCounter != nil {
		taskRunCounter.Add(ctx, 1, metric.WithAttributes(
			telemetry.TaskAttributes(task.AgentID, task.ID, task.Schedule)...))
	}
}

var (
	schedulerMetricsOnce sync.Once
	taskRunCounter       metric.Int64Counter
	taskErrorCounter     metric.Int64Counter
	overlapCounter       metric.Int64Counter
)

func initSchedulerMetrics() {
	schedulerMetricsOnce.Do(func() {
		meter := otel.Meter("praxis/scheduler")
		taskRunCounter, _ = meter.Int64Counter("praxis.scheduler.task.run.count")
		taskErrorCounter, _ = meter.Int64Counter("praxis.scheduler.task.error.count")
		overlapCounter, _ = meter.Int64Counter("praxis.scheduler.task.overlap.count")
	})
}
