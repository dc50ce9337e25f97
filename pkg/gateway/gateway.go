// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway runs capability invocations end to end: authorization,
// argument validation, credit reservation, execution with retry, and
// settlement. Every attempt lands in the audit log regardless of outcome.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxislabs/praxis/pkg/capability"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/ledger"
	"github.com/praxislabs/praxis/pkg/llm"
	"github.com/praxislabs/praxis/pkg/resilience"
	"github.com/praxislabs/praxis/pkg/telemetry"
)

// Gateway is the single path from a model's tool call to a capability
// execution. The engine never touches capabilities directly.
type Gateway struct {
	registry *capability.Registry
	ledger   ledger.Ledger
	audit    AuditLog
	tracer   trace.Tracer

	retry             resilience.RetryConfig
	invocationTimeout time.Duration
}

// Option customizes gateway behavior.
type Option func(*Gateway)

// WithRetry overrides the retry policy applied to idempotent capabilities.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(g *Gateway) { g.retry = rc }
}

// WithInvocationTimeout bounds a single capability execution attempt.
func WithInvocationTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.invocationTimeout = d
		}
	}
}

func New(registry *capability.Registry, l ledger.Ledger, audit AuditLog, opts ...Option) *Gateway {
	g := &Gateway{
		registry:          registry,
		ledger:            l,
		audit:             audit,
		tracer:            otel.Tracer("praxis/gateway"),
		retry:             resilience.DefaultRetryConfig(),
		invocationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VisibleTools returns the tool definitions the caller may see for this
// agent, in the shape the model expects.
func (g *Gateway) VisibleTools(agent *core.Agent, caller core.Caller) []llm.Tool {
	return capability.ToolDefinitions(g.registry.VisibleTo(agent, caller))
}

// Invocation is the resolved request for one capability call.
type Invocation struct {
	Agent  *core.Agent
	Caller core.Caller
	TurnID string
	Name   string
	Args   map[string]any
}

// Result is the outcome of a successful invocation.
type Result struct {
	Output string
	Record core.CapabilityCallRecord
}

// Invoke runs the full invocation pipeline. On success the reservation is
// finalized at the nominal cost; on any failure after reservation the hold
// is refunded in full. Authorization runs first: a denied caller gets the
// same error whether their arguments were valid or not.
func (g *Gateway) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gateway.invoke")
	defer span.End()

	rec := InvocationRecord{
		ID:         uuid.NewString(),
		AgentID:    inv.Agent.ID,
		TurnID:     inv.TurnID,
		CallerID:   inv.Caller.ID,
		Capability: inv.Name,
		StartedAt:  start.UTC(),
	}
	if raw, err := json.Marshal(inv.Args); err == nil {
		rec.ArgsJSON = string(raw)
	}

	c, err := g.registry.Authorize(inv.Agent, inv.Caller, inv.Name)
	if err != nil {
		g.finishRecord(ctx, &rec, StatusDenied, err)
		return nil, err
	}
	contract := c.Contract()

	if err := capability.ValidateArgs(contract, inv.Args); err != nil {
		g.finishRecord(ctx, &rec, StatusInvalid, err)
		return nil, err
	}

	reservation, err := g.ledger.Reserve(ctx, inv.Agent.ID, inv.TurnID, contract.Name, contract.NominalCost)
	if err != nil {
		g.finishRecord(ctx, &rec, StatusFailed, err)
		return nil, err
	}

	retry := g.retry
	if !contract.Idempotent {
		retry = retry.WithMaxAttempts(1)
	}

	var output any
	attempts := 0
	err = retry.Do(ctx, func(attempt int) error {
		attempts = attempt
		return resilience.WithTimeout(ctx, g.invocationTimeout, func(ctx context.Context) error {
			var invokeErr error
			output, invokeErr = c.Invoke(ctx, inv.Args)
			return invokeErr
		})
	})
	rec.Attempts = attempts

	if err != nil {
		if refundErr := g.ledger.Refund(ctx, reservation.ID, err.Error()); refundErr != nil {
			slog.ErrorContext(ctx, "gateway.refund.failed",
				"reservation_id", reservation.ID, "error", refundErr)
		}
		g.finishRecord(ctx, &rec, StatusFailed, err)
		g.recordMetrics(ctx, contract.Name, attempts, false)
		return nil, err
	}

	if err := g.ledger.Finalize(ctx, reservation.ID, contract.NominalCost); err != nil {
		// The capability ran; a settlement failure is an internal fault,
		// not a capability failure.
		g.finishRecord(ctx, &rec, StatusFailed, err)
		return nil, errors.New(errors.CodeInternal, "failed to settle invocation charge", err).
			WithContext("reservation_id", reservation.ID)
	}

	rec.Cost = contract.NominalCost
	g.finishRecord(ctx, &rec, StatusOK, nil)
	g.recordMetrics(ctx, contract.Name, attempts, true)

	slog.InfoContext(ctx, "gateway.invoke.ok",
		"agent_id", inv.Agent.ID,
		"capability", contract.Name,
		"attempts", attempts,
		"cost", contract.NominalCost.String(),
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{
		Output: renderOutput(output),
		Record: core.CapabilityCallRecord{
			Name:     contract.Name,
			Cost:     contract.NominalCost,
			Latency:  time.Since(start),
			Attempts: attempts,
		},
	}, nil
}

func (g *Gateway) finishRecord(ctx context.Context, rec *InvocationRecord, status InvocationStatus, cause error) {
	rec.Status = status
	rec.FinishedAt = time.Now().UTC()
	if cause != nil {
		rec.Error = cause.Error()
	}
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(ctx, *rec); err != nil {
		slog.ErrorContext(ctx, "gateway.audit.failed", "invocation_id", rec.ID, "error", err)
	}
}

// renderOutput turns a capability result into the observation text fed back
// to the model.
func renderOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func (g *Gateway) recordMetrics(ctx context.Context, name string, attempts int, success bool) {
	initGatewayMetrics()
	if invocationCounter != nil {
		invocationCounter.Add(ctx, 1, metric.WithAttributes(
			telemetry.CapabilityAttributes(name, "", attempts, success)...))
	}
}
