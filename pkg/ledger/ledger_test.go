// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/errors"
)

func fund(t *testing.T, l Ledger, account string, amount int64) {
	t.Helper()
	if err := l.Refill(context.Background(), account, decimal.NewFromInt(amount), "test-period"); err != nil {
		t.Fatalf("refill failed: %v", err)
	}
}

func TestReserveFinalizeDebitsActual(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	r, err := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := l.Finalize(ctx, r.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	balance, _ := l.Balance(ctx, "acct")
	if !balance.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected balance 90, got %s", balance)
	}
	available, _ := l.Available(ctx, "acct")
	if !available.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected available 90, got %s", available)
	}
}

func TestFinalizeBelowHoldReleasesRemainder(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	r, _ := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(10))
	if err := l.Finalize(ctx, r.ID, decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	balance, _ := l.Balance(ctx, "acct")
	if !balance.Equal(decimal.NewFromInt(96)) {
		t.Errorf("expected balance 96, got %s", balance)
	}
}

func TestReserveRejectsWhenInsufficient(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 5)

	_, err := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(10))
	if errors.CodeOf(err) != errors.CodeQuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}

	// The failed reservation must leave no hold behind.
	available, _ := l.Available(ctx, "acct")
	if !available.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected available 5, got %s", available)
	}
}

func TestPendingHoldReducesAvailableNotBalance(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	_, _ = l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(30))

	balance, _ := l.Balance(ctx, "acct")
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pending hold should not move the balance, got %s", balance)
	}
	available, _ := l.Available(ctx, "acct")
	if !available.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected available 70, got %s", available)
	}
}

func TestRefundRestoresAvailable(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	r, _ := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(30))
	if err := l.Refund(ctx, r.ID, "permanent capability failure"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	available, _ := l.Available(ctx, "acct")
	if !available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected available 100 after refund, got %s", available)
	}

	// The log shows the attempt.
	entries, _ := l.Entries(ctx, "acct", 0)
	var refunds int
	for _, e := range entries {
		if e.Reason == ReasonRefund {
			refunds++
		}
	}
	if refunds != 1 {
		t.Errorf("expected 1 refund entry, got %d", refunds)
	}
}

func TestDoubleSettleRejected(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	r, _ := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(10))
	if err := l.Finalize(ctx, r.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := l.Refund(ctx, r.ID, "late"); errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected invalid input on double settle, got %v", err)
	}
}

func TestRefillIdempotentPerPeriod(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Refill(ctx, "acct", decimal.NewFromInt(50), "2026-08-30"); err != nil {
			t.Fatalf("Refill failed: %v", err)
		}
	}
	if err := l.Refill(ctx, "acct", decimal.NewFromInt(50), "2026-08-31"); err != nil {
		t.Fatalf("Refill failed: %v", err)
	}

	balance, _ := l.Balance(ctx, "acct")
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected balance 100 (two periods), got %s", balance)
	}
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 50)

	var wg sync.WaitGroup
	granted := make(chan *Reservation, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.Reserve(ctx, "acct", "turn-x", "web.search", decimal.NewFromInt(10))
			if err == nil {
				granted <- r
			}
		}()
	}
	wg.Wait()
	close(granted)

	var count int
	for r := range granted {
		count++
		if err := l.Finalize(ctx, r.ID, r.Amount); err != nil {
			t.Fatalf("Finalize failed: %v", err)
		}
	}
	if count != 5 {
		t.Errorf("expected exactly 5 grants from a balance of 50, got %d", count)
	}
	balance, _ := l.Balance(ctx, "acct")
	if balance.IsNegative() {
		t.Errorf("balance went negative: %s", balance)
	}
	if !balance.Equal(decimal.Zero) {
		t.Errorf("expected zero balance, got %s", balance)
	}
}

func TestReconcileFlagsStaleReservations(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	r, _ := l.Reserve(ctx, "acct", "turn-1", "web.search", decimal.NewFromInt(10))
	// Age the hold past the cutoff.
	l.mu.Lock()
	l.reservations[r.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	l.mu.Unlock()

	findings, err := Reconcile(ctx, l, []string{"acct"}, time.Hour)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(findings) != 1 || findings[0].Kind != "stale_reservation" {
		t.Fatalf("expected one stale_reservation finding, got %+v", findings)
	}
}

func TestReconcileCleanLedger(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()
	fund(t, l, "acct", 100)

	findings, err := Reconcile(ctx, l, []string{"acct"}, time.Hour)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}
