// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler fires autonomous tasks on their schedules, one turn per
// activation, without overlapping runs of the same task.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/praxislabs/praxis/pkg/errors"
)

// Task is one recurring autonomous job owned by an agent.
type Task struct {
	ID      string `json:"id" yaml:"id"`
	AgentID string `json:"agent_id" yaml:"agent_id"`
	Name    string `json:"name" yaml:"name"`

	// Prompt is the instruction injected as the turn's user content.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Schedule is a cron expression or descriptor ("0 * * * *", "@hourly",
	// "@every 10m").
	Schedule string `json:"schedule" yaml:"schedule"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// scheduleParser accepts standard five-field cron plus descriptors.
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates and compiles a task schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid schedule expression", err).
			WithContext("schedule", expr)
	}
	return sched, nil
}

// Validate checks the task is well formed, including its schedule.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New(errors.CodeInvalidInput, "task id is required", nil)
	}
	if t.AgentID == "" {
		return errors.New(errors.CodeInvalidInput, "task agent_id is required", nil)
	}
	if t.Prompt == "" {
		return errors.New(errors.CodeInvalidInput, "task prompt is required", nil)
	}
	_, err := ParseSchedule(t.Schedule)
	return err
}

// Store persists task definitions.
type Store interface {
	Get(ctx context.Context, id string) (*Task, error)
	Put(ctx context.Context, task *Task) error
	List(ctx context.Context) ([]*Task, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryTaskStore keeps tasks in process memory.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[string]Task)}
}

func (s *InMemoryTaskStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "unknown task", nil).WithContext("task_id", id)
	}
	out := task
	return &out, nil
}

func (s *InMemoryTaskStore) Put(_ context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *InMemoryTaskStore) List(_ context.Context) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for id := range s.tasks {
		task := s.tasks[id]
		out = append(out, &task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errors.New(errors.CodeNotFound, "unknown task", nil).WithContext("task_id", id)
	}
	delete(s.tasks, id)
	return nil
}

var _ Store = (*InMemoryTaskStore)(nil)
