// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
)

// blockingRunner records turns and optionally holds them open until
// released.
type blockingRunner struct {
	mu      sync.Mutex
	runs    []core.TurnRequest
	started chan core.TurnRequest
	release chan struct{}
}

func newBlockingRunner(buffered int) *blockingRunner {
	return &blockingRunner{
		started: make(chan core.TurnRequest, buffered),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	r.mu.Lock()
	r.runs = append(r.runs, req)
	r.mu.Unlock()
	r.started <- req
	<-r.release
	return &core.TurnResult{TurnID: "t", Content: "done", Steps: 1}, nil
}

func (r *blockingRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func fixture(t *testing.T) (*Scheduler, *InMemoryTaskStore, *blockingRunner) {
	t.Helper()
	agentStore := agents.NewInMemoryStore()
	if err := agentStore.Put(context.Background(), &core.Agent{ID: "helper", Owner: "owner-1", Model: "qwen2.5"}); err != nil {
		t.Fatal(err)
	}
	tasks := NewInMemoryTaskStore()
	runner := newBlockingRunner(4)
	return New(tasks, agentStore, runner), tasks, runner
}

func putTask(t *testing.T, tasks *InMemoryTaskStore, id, schedule string) {
	t.Helper()
	err := tasks.Put(context.Background(), &Task{
		ID:       id,
		AgentID:  "helper",
		Name:     "watch",
		Prompt:   "check the feeds",
		Schedule: schedule,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestTickFiresDueTaskOnce(t *testing.T) {
	s, tasks, runner := fixture(t)
	putTask(t, tasks, "task-1", "@every 1s")

	t0 := time.Now()
	s.Tick(context.Background(), t0) // first sight anchors, nothing fires
	if runner.runCount() != 0 {
		t.Fatalf("task fired on first sight")
	}

	s.Tick(context.Background(), t0.Add(2*time.Second))
	req := <-runner.started
	close(runner.release)

	if req.AgentID != "helper" {
		t.Errorf("unexpected agent %s", req.AgentID)
	}
	if req.ChatKey != core.AutonomousChatID("task-1") {
		t.Errorf("unexpected chat key %s", req.ChatKey)
	}
	if req.Task == nil || req.Task.TaskID != "task-1" {
		t.Errorf("task context missing: %+v", req.Task)
	}
	if req.Caller.ID != "owner-1" || req.Caller.Channel != "scheduler" {
		t.Errorf("autonomous turns must run as the owner, got %+v", req.Caller)
	}
}

func TestTickIsIdempotentForSameInstant(t *testing.T) {
	s, tasks, runner := fixture(t)
	putTask(t, tasks, "task-1", "@every 1s")
	close(runner.release) // let turns complete immediately

	t0 := time.Now()
	s.Tick(context.Background(), t0)
	now := t0.Add(2 * time.Second)
	s.Tick(context.Background(), now)
	s.Tick(context.Background(), now)

	<-runner.started
	select {
	case <-runner.started:
		t.Fatal("same instant fired the task twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	s, tasks, runner := fixture(t)
	putTask(t, tasks, "task-1", "@every 1s")

	t0 := time.Now()
	s.Tick(context.Background(), t0)
	s.Tick(context.Background(), t0.Add(time.Second))
	<-runner.started // first run now in flight

	// Next slot comes due while the first run is still going.
	s.Tick(context.Background(), t0.Add(2*time.Second))
	select {
	case <-runner.started:
		t.Fatal("overlapping run was not skipped")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	// Once the first run finishes the task fires on the next due tick.
	deadline := time.After(time.Second)
	for {
		s.Tick(context.Background(), t0.Add(4*time.Second))
		select {
		case <-runner.started:
			return
		case <-deadline:
			t.Fatal("task did not fire after previous run completed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTickRunsEveryStoredTask(t *testing.T) {
	s, tasks, runner := fixture(t)
	// The bare fields a caller supplies over the API: a stored task always
	// runs, there is no switch to leave it dormant.
	err := tasks.Put(context.Background(), &Task{
		ID:       "task-1",
		AgentID:  "helper",
		Prompt:   "check the feeds",
		Schedule: "@every 1s",
	})
	if err != nil {
		t.Fatal(err)
	}
	close(runner.release)

	t0 := time.Now()
	s.Tick(context.Background(), t0)
	s.Tick(context.Background(), t0.Add(2*time.Second))
	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("stored task never fired")
	}

	// Deletion is the only way to stop a task.
	if err := tasks.Delete(context.Background(), "task-1"); err != nil {
		t.Fatal(err)
	}
	s.Tick(context.Background(), t0.Add(4*time.Second))
	select {
	case <-runner.started:
		t.Fatal("deleted task fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTriggerRejectsRunningTask(t *testing.T) {
	s, tasks, runner := fixture(t)
	putTask(t, tasks, "task-1", "@hourly")

	go func() {
		_ = s.Trigger(context.Background(), "task-1")
	}()
	<-runner.started

	err := s.Trigger(context.Background(), "task-1")
	if errors.CodeOf(err) != errors.CodeSchedulerOverlap {
		t.Errorf("expected scheduler overlap, got %v", err)
	}
	close(runner.release)
}

func TestTaskValidate(t *testing.T) {
	valid := &Task{ID: "t", AgentID: "a", Prompt: "p", Schedule: "@hourly"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	bad := &Task{ID: "t", AgentID: "a", Prompt: "p", Schedule: "not a schedule"}
	if err := bad.Validate(); errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected invalid input for bad schedule, got %v", err)
	}

	cron := &Task{ID: "t", AgentID: "a", Prompt: "p", Schedule: "*/5 * * * *"}
	if err := cron.Validate(); err != nil {
		t.Errorf("five-field cron rejected: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, tasks, runner := fixture(t)
	putTask(t, tasks, "task-1", "@every 1h")
	close(runner.release)

	s.Start(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	// Stop again is a no-op.
	s.Stop()
}
