// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/errors"
)

// InMemoryLedger keeps the log and reservations in process memory. Used by
// tests and single-node setups that don't need durability.
type InMemoryLedger struct {
	mu           sync.Mutex
	entries      []Entry
	reservations map[string]*Reservation
	refills      map[string]bool // account + "\x00" + periodKey
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		reservations: make(map[string]*Reservation),
		refills:      make(map[string]bool),
	}
}

func (l *InMemoryLedger) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account), nil
}

func (l *InMemoryLedger) balanceLocked(account string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		if e.Account != account || e.Reason == ReasonRefund {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}

func (l *InMemoryLedger) Available(_ context.Context, account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked(account), nil
}

func (l *InMemoryLedger) availableLocked(account string) decimal.Decimal {
	total := l.balanceLocked(account)
	for _, r := range l.reservations {
		if r.Account == account && r.State == ReservationPending {
			total = total.Sub(r.Amount)
		}
	}
	return total
}

func (l *InMemoryLedger) Reserve(_ context.Context, account, turnID, capability string, amount decimal.Decimal) (*Reservation, error) {
	if amount.IsNegative() {
		return nil, errors.New(errors.CodeInvalidInput, "reservation amount must not be negative", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.availableLocked(account).LessThan(amount) {
		return nil, errors.New(errors.CodeQuotaExceeded, "insufficient credits", nil).
			WithContext("account", account).
			WithContext("requested", amount.String())
	}

	r := &Reservation{
		ID:         uuid.NewString(),
		Account:    account,
		TurnID:     turnID,
		Capability: capability,
		Amount:     amount,
		State:      ReservationPending,
		CreatedAt:  time.Now().UTC(),
	}
	l.reservations[r.ID] = r

	out := *r
	return &out, nil
}

func (l *InMemoryLedger) Finalize(_ context.Context, reservationID string, actual decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return errors.New(errors.CodeNotFound, "unknown reservation", nil).WithContext("reservation_id", reservationID)
	}
	if r.State != ReservationPending {
		return errors.New(errors.CodeInvalidInput, "reservation already settled", nil).
			WithContext("reservation_id", reservationID).
			WithContext("state", string(r.State))
	}

	r.State = ReservationFinalized
	l.entries = append(l.entries, Entry{
		ID:         uuid.NewString(),
		Account:    r.Account,
		TurnID:     r.TurnID,
		Capability: r.Capability,
		Amount:     actual.Neg(),
		Reason:     ReasonDebit,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (l *InMemoryLedger) Refund(_ context.Context, reservationID string, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return errors.New(errors.CodeNotFound, "unknown reservation", nil).WithContext("reservation_id", reservationID)
	}
	if r.State != ReservationPending {
		return errors.New(errors.CodeInvalidInput, "reservation already settled", nil).
			WithContext("reservation_id", reservationID).
			WithContext("state", string(r.State))
	}

	r.State = ReservationRefunded
	l.entries = append(l.entries, Entry{
		ID:         uuid.NewString(),
		Account:    r.Account,
		TurnID:     r.TurnID,
		Capability: r.Capability,
		Amount:     r.Amount,
		Reason:     ReasonRefund,
		Note:       note,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (l *InMemoryLedger) Refill(_ context.Context, account string, amount decimal.Decimal, periodKey string) error {
	if amount.IsNegative() {
		return errors.New(errors.CodeInvalidInput, "refill amount must not be negative", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := account + "\x00" + periodKey
	if l.refills[key] {
		return nil
	}
	l.refills[key] = true
	l.entries = append(l.entries, Entry{
		ID:        uuid.NewString(),
		Account:   account,
		Amount:    amount,
		Reason:    ReasonRefill,
		Note:      periodKey,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (l *InMemoryLedger) Entries(_ context.Context, account string, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Account != account {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PendingReservations returns holds created before the cutoff that are still
// pending.
func (l *InMemoryLedger) PendingReservations(_ context.Context, before time.Time) ([]Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Reservation
	for _, r := range l.reservations {
		if r.State == ReservationPending && r.CreatedAt.Before(before) {
			out = append(out, *r)
		}
	}
	return out, nil
}

var _ Ledger = (*InMemoryLedger)(nil)
var _ ReservationLister = (*InMemoryLedger)(nil)
