// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger meters agent spend. Every charge is a two-phase operation:
// a reservation holds the nominal amount up front, and on completion the
// actual amount is finalized while the remainder is released. The entry log
// is append-only; balances are derived, never edited in place.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Reason classifies a ledger entry.
type Reason string

const (
	ReasonDebit  Reason = "debit"  // finalized charge
	ReasonRefund Reason = "refund" // released after a failed invocation
	ReasonRefill Reason = "refill" // periodic credit grant
)

// ReservationState tracks the lifecycle of a hold.
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationFinalized ReservationState = "finalized"
	ReservationRefunded  ReservationState = "refunded"
)

// Entry is one immutable row of the ledger log. Debits carry a negative
// Amount and refills a positive one; those two sum to the balance. Refund
// rows record released holds with the amount that was held and are
// informational, since a hold never reaches the settled balance.
type Entry struct {
	ID         string          `json:"id"`
	Account    string          `json:"account"`
	TurnID     string          `json:"turn_id,omitempty"`
	Capability string          `json:"capability,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     Reason          `json:"reason"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Reservation is a pending hold against an account. It reduces the available
// balance without touching the entry log until finalized or refunded.
type Reservation struct {
	ID         string           `json:"id"`
	Account    string           `json:"account"`
	TurnID     string           `json:"turn_id,omitempty"`
	Capability string           `json:"capability,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	State      ReservationState `json:"state"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Ledger is the metering interface the gateway and engine charge against.
type Ledger interface {
	// Balance returns the settled balance: the sum of all finalized entries.
	Balance(ctx context.Context, account string) (decimal.Decimal, error)

	// Available returns the balance minus all pending reservations. This is
	// the amount new reservations are checked against.
	Available(ctx context.Context, account string) (decimal.Decimal, error)

	// Reserve places a hold for amount. It fails with a quota error when the
	// available balance is insufficient; an account is never driven negative.
	Reserve(ctx context.Context, account, turnID, capability string, amount decimal.Decimal) (*Reservation, error)

	// Finalize settles a pending reservation at the actual amount, which may
	// be lower than the hold. The difference is released, not refunded as a
	// separate entry.
	Finalize(ctx context.Context, reservationID string, actual decimal.Decimal) error

	// Refund releases a pending reservation in full and records an
	// informational refund entry so the log shows the failed attempt.
	Refund(ctx context.Context, reservationID string, note string) error

	// Refill credits the account for a billing period. periodKey identifies
	// the period (for example "2026-08-30" for daily refills); a second call
	// with the same account and periodKey is a no-op.
	Refill(ctx context.Context, account string, amount decimal.Decimal, periodKey string) error

	// Entries returns the most recent log rows for an account, newest first.
	Entries(ctx context.Context, account string, limit int) ([]Entry, error)
}
