// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// InvocationStatus classifies how a capability invocation ended.
type InvocationStatus string

const (
	StatusOK      InvocationStatus = "ok"
	StatusDenied  InvocationStatus = "denied"
	StatusInvalid InvocationStatus = "invalid"
	StatusFailed  InvocationStatus = "failed"
)

// InvocationRecord is one row of the invocation audit trail.
type InvocationRecord struct {
	ID         string
	AgentID    string
	TurnID     string
	CallerID   string
	Capability string
	ArgsJSON   string
	Status     InvocationStatus
	Error      string
	Cost       decimal.Decimal
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	AgentID    string
	TurnID     string
	Capability string
	Status     InvocationStatus
	Limit      int
}

// AuditLog records every capability invocation attempt, including denied and
// invalid ones. Logging failures must not fail the invocation itself, so
// implementations swallow nothing but callers only log append errors.
type AuditLog interface {
	Record(ctx context.Context, rec InvocationRecord) error
	List(ctx context.Context, filter AuditFilter) ([]InvocationRecord, error)
}

// InMemoryAuditLog keeps records in process memory, for tests.
type InMemoryAuditLog struct {
	mu      sync.Mutex
	records []InvocationRecord
}

func NewInMemoryAuditLog() *InMemoryAuditLog {
	return &InMemoryAuditLog{}
}

func (a *InMemoryAuditLog) Record(_ context.Context, rec InvocationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *InMemoryAuditLog) List(_ context.Context, filter AuditFilter) ([]InvocationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []InvocationRecord
	for _, rec := range a.records {
		if filter.AgentID != "" && rec.AgentID != filter.AgentID {
			continue
		}
		if filter.TurnID != "" && rec.TurnID != filter.TurnID {
			continue
		}
		if filter.Capability != "" && rec.Capability != filter.Capability {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

var _ AuditLog = (*InMemoryAuditLog)(nil)
