// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/capability"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/ledger"
	"github.com/praxislabs/praxis/pkg/resilience"
)

type fixture struct {
	gateway  *Gateway
	registry *capability.Registry
	ledger   *ledger.InMemoryLedger
	audit    *InMemoryAuditLog
	agent    *core.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: capability.NewRegistry(),
		ledger:   ledger.NewInMemoryLedger(),
		audit:    NewInMemoryAuditLog(),
		agent: &core.Agent{
			ID:    "agent-1",
			Owner: "owner-1",
			Capabilities: map[string]core.AuthzState{
				"util.echo":       core.AuthzPublic,
				"wallet.transfer": core.AuthzPrivate,
			},
		},
	}
	if err := f.ledger.Refill(context.Background(), "agent-1", decimal.NewFromInt(100), "p1"); err != nil {
		t.Fatalf("refill failed: %v", err)
	}
	retry := resilience.DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	f.gateway = New(f.registry, f.ledger, f.audit, WithRetry(retry), WithInvocationTimeout(time.Second))
	return f
}

func (f *fixture) register(t *testing.T, name string, idempotent bool, fn func(ctx context.Context, args map[string]any) (any, error)) {
	t.Helper()
	err := f.registry.Register(&capability.Func{
		Spec: capability.Contract{
			Name:        name,
			Description: "test capability",
			NominalCost: decimal.NewFromInt(10),
			Idempotent:  idempotent,
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"text"},
			},
		},
		Fn: fn,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestInvokeHappyPathDebitsOnce(t *testing.T) {
	f := newFixture(t)
	f.register(t, "util.echo", true, func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})

	res, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		TurnID: "turn-1",
		Name:   "util.echo",
		Args:   map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Output != "hello" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if !res.Record.Cost.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected cost %s", res.Record.Cost)
	}

	balance, _ := f.ledger.Balance(context.Background(), "agent-1")
	if !balance.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected balance 90, got %s", balance)
	}
}

func TestInvokeDeniedBeforeValidation(t *testing.T) {
	f := newFixture(t)
	invoked := 0
	f.register(t, "wallet.transfer", false, func(_ context.Context, _ map[string]any) (any, error) {
		invoked++
		return "ok", nil
	})

	// Arguments are deliberately invalid; the caller must still get an
	// authorization error, not a validation one.
	_, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "stranger"},
		Name:   "wallet.transfer",
		Args:   map[string]any{"text": 42},
	})
	if errors.CodeOf(err) != errors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if invoked != 0 {
		t.Errorf("capability invoked %d times despite denial", invoked)
	}

	// Denial must not touch the ledger.
	available, _ := f.ledger.Available(context.Background(), "agent-1")
	if !available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ledger touched on denied invocation: available %s", available)
	}

	records, _ := f.audit.List(context.Background(), AuditFilter{Status: StatusDenied})
	if len(records) != 1 {
		t.Errorf("expected 1 denied audit record, got %d", len(records))
	}
}

func TestInvokeInvalidArgsNoReservation(t *testing.T) {
	f := newFixture(t)
	invoked := 0
	f.register(t, "util.echo", true, func(_ context.Context, _ map[string]any) (any, error) {
		invoked++
		return "ok", nil
	})

	_, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		Name:   "util.echo",
		Args:   map[string]any{},
	})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if invoked != 0 {
		t.Errorf("capability invoked despite invalid args")
	}
	available, _ := f.ledger.Available(context.Background(), "agent-1")
	if !available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ledger touched on invalid invocation: available %s", available)
	}
}

func TestInvokeRetriesTransientThenFinalizesOnce(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.register(t, "util.echo", true, func(_ context.Context, args map[string]any) (any, error) {
		calls++
		if calls < 3 {
			return nil, capability.Transient(stderrors.New("upstream busy"))
		}
		return args["text"], nil
	})

	res, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		TurnID: "turn-1",
		Name:   "util.echo",
		Args:   map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatalf("Invoke failed after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if res.Record.Attempts != 3 {
		t.Errorf("record shows %d attempts", res.Record.Attempts)
	}

	// One debit for the whole invocation, no refund rows.
	entries, _ := f.ledger.Entries(context.Background(), "agent-1", 0)
	var debits, refunds int
	for _, e := range entries {
		switch e.Reason {
		case ledger.ReasonDebit:
			debits++
		case ledger.ReasonRefund:
			refunds++
		}
	}
	if debits != 1 || refunds != 0 {
		t.Errorf("expected 1 debit and 0 refunds, got %d and %d", debits, refunds)
	}
}

func TestInvokePermanentFailureRefunds(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.register(t, "util.echo", true, func(_ context.Context, _ map[string]any) (any, error) {
		calls++
		return nil, capability.Permanent(stderrors.New("no such record"))
	})

	_, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		Name:   "util.echo",
		Args:   map[string]any{"text": "hi"},
	})
	if errors.CodeOf(err) != errors.CodeCapabilityPermanent {
		t.Fatalf("expected permanent capability error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent failure retried: %d calls", calls)
	}

	available, _ := f.ledger.Available(context.Background(), "agent-1")
	if !available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("hold not refunded: available %s", available)
	}
}

func TestInvokeNonIdempotentNeverRetried(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.register(t, "util.echo", false, func(_ context.Context, _ map[string]any) (any, error) {
		calls++
		return nil, capability.Transient(stderrors.New("flaky"))
	})

	_, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		Name:   "util.echo",
		Args:   map[string]any{"text": "hi"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-idempotent capability retried: %d calls", calls)
	}
}

func TestInvokeQuotaExceededBeforeExecution(t *testing.T) {
	f := newFixture(t)
	invoked := 0
	f.register(t, "util.echo", true, func(_ context.Context, _ map[string]any) (any, error) {
		invoked++
		return "ok", nil
	})

	// Drain the account below the nominal cost.
	r, _ := f.ledger.Reserve(context.Background(), "agent-1", "t", "x.y", decimal.NewFromInt(95))
	_ = f.ledger.Finalize(context.Background(), r.ID, decimal.NewFromInt(95))

	_, err := f.gateway.Invoke(context.Background(), Invocation{
		Agent:  f.agent,
		Caller: core.Caller{ID: "anyone"},
		Name:   "util.echo",
		Args:   map[string]any{"text": "hi"},
	})
	if errors.CodeOf(err) != errors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if invoked != 0 {
		t.Errorf("capability invoked despite exhausted credits")
	}
}

func TestRenderOutput(t *testing.T) {
	if got := renderOutput("plain"); got != "plain" {
		t.Errorf("string output: %q", got)
	}
	if got := renderOutput(map[string]any{"k": "v"}); got != `{"k":"v"}` {
		t.Errorf("map output: %q", got)
	}
	if got := renderOutput(nil); got != "" {
		t.Errorf("nil output: %q", got)
	}
}
