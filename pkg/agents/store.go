// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package agents persists agent definitions and loads operator-authored
// manifests from disk.
package agents

import (
	"context"
	"sort"
	"sync"

	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
)

// Store holds agent definitions. Engines read a snapshot per turn; updates
// take effect on the next turn.
type Store interface {
	Get(ctx context.Context, id string) (*core.Agent, error)
	Put(ctx context.Context, agent *core.Agent) error
	List(ctx context.Context) ([]*core.Agent, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryStore keeps agents in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{agents: make(map[string]core.Agent)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "unknown agent", nil).WithContext("agent_id", id)
	}
	out := agent
	return &out, nil
}

func (s *InMemoryStore) Put(_ context.Context, agent *core.Agent) error {
	if agent.ID == "" {
		return errors.New(errors.CodeInvalidInput, "agent id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = *agent
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Agent, 0, len(s.agents))
	for id := range s.agents {
		agent := s.agents[id]
		out = append(out, &agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return errors.New(errors.CodeNotFound, "unknown agent", nil).WithContext("agent_id", id)
	}
	delete(s.agents, id)
	return nil
}

var _ Store = (*InMemoryStore)(nil)
