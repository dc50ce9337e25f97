// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements Store with in-memory storage. Suitable for
// development, testing, and single-instance deployments. Data is lost on
// restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]TurnEntry
}

// NewInMemoryStore creates a new in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string][]TurnEntry),
	}
}

// Load retrieves the thread history trimmed to tokenBudget.
func (m *InMemoryStore) Load(_ context.Context, threadKey string, tokenBudget int) ([]TurnEntry, error) {
	m.mu.RLock()
	entries := make([]TurnEntry, len(m.threads[threadKey]))
	copy(entries, m.threads[threadKey])
	m.mu.RUnlock()

	if tokenBudget > 0 {
		return TrimToBudget(entries, tokenBudget), nil
	}
	return entries, nil
}

// AppendBatch appends the entries of one turn atomically.
func (m *InMemoryStore) AppendBatch(_ context.Context, threadKey string, entries []TurnEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		stored := e.Redacted()
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		if stored.ThreadKey == "" {
			stored.ThreadKey = threadKey
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		stored.EnsureTokens()
		m.threads[threadKey] = append(m.threads[threadKey], stored)
	}
	return nil
}

// Trim permanently drops oldest entries until the history fits tokenBudget.
func (m *InMemoryStore) Trim(_ context.Context, threadKey string, tokenBudget int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.threads[threadKey] = TrimToBudget(m.threads[threadKey], tokenBudget)
	return nil
}

// Clear removes all entries for a thread.
func (m *InMemoryStore) Clear(_ context.Context, threadKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.threads, threadKey)
	return nil
}

// EntryCount returns the number of stored entries for a thread.
func (m *InMemoryStore) EntryCount(threadKey string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads[threadKey])
}

var _ Store = (*InMemoryStore)(nil)
