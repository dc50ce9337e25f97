// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"time"
)

// ReservationLister is implemented by stores that can enumerate pending
// holds, used by reconciliation to spot reservations left behind by crashes.
type ReservationLister interface {
	PendingReservations(ctx context.Context, before time.Time) ([]Reservation, error)
}

// Finding is one anomaly detected by a reconciliation pass. Findings are
// reported, never auto-corrected; a held reservation may belong to a turn
// that is still in flight on another node.
type Finding struct {
	Account string
	Kind    string // "negative_balance" or "stale_reservation"
	Detail  string
}

// Reconcile recomputes each account's balance from the entry log and checks
// for stale pending reservations older than maxHoldAge.
func Reconcile(ctx context.Context, l Ledger, accounts []string, maxHoldAge time.Duration) ([]Finding, error) {
	var findings []Finding

	for _, account := range accounts {
		balance, err := l.Balance(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("reconcile balance for %s: %w", account, err)
		}
		if balance.IsNegative() {
			findings = append(findings, Finding{
				Account: account,
				Kind:    "negative_balance",
				Detail:  fmt.Sprintf("balance %s is negative", balance),
			})
		}
	}

	lister, ok := l.(ReservationLister)
	if !ok {
		return findings, nil
	}

	cutoff := time.Now().Add(-maxHoldAge)
	stale, err := lister.PendingReservations(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reconcile pending reservations: %w", err)
	}
	for _, r := range stale {
		findings = append(findings, Finding{
			Account: r.Account,
			Kind:    "stale_reservation",
			Detail:  fmt.Sprintf("reservation %s for %s held since %s", r.ID, r.Amount, r.CreatedAt.Format(time.RFC3339)),
		})
	}
	return findings, nil
}
