// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/errors"
)

// SQLiteLedger persists the entry log and reservations in SQLite. Amounts
// are stored as decimal strings to avoid float drift.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	if err := ensureLedgerSchema(db); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func ensureLedgerSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id          TEXT PRIMARY KEY,
			account     TEXT NOT NULL,
			turn_id     TEXT NOT NULL DEFAULT '',
			capability  TEXT NOT NULL DEFAULT '',
			amount      TEXT NOT NULL,
			reason      TEXT NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			period_key  TEXT,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_refill_period
			ON ledger_entries(account, period_key) WHERE period_key IS NOT NULL;

		CREATE TABLE IF NOT EXISTS ledger_reservations (
			id          TEXT PRIMARY KEY,
			account     TEXT NOT NULL,
			turn_id     TEXT NOT NULL DEFAULT '',
			capability  TEXT NOT NULL DEFAULT '',
			amount      TEXT NOT NULL,
			state       TEXT NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_reservations_account
			ON ledger_reservations(account, state);
	`)
	return err
}

func (l *SQLiteLedger) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return l.balanceTx(ctx, l.db, account)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (l *SQLiteLedger) balanceTx(ctx context.Context, q querier, account string) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT amount FROM ledger_entries WHERE account = ? AND reason != ?`,
		account, string(ReasonRefund))
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		total = total.Add(amt)
	}
	return total, rows.Err()
}

func (l *SQLiteLedger) Available(ctx context.Context, account string) (decimal.Decimal, error) {
	return l.availableTx(ctx, l.db, account)
}

func (l *SQLiteLedger) availableTx(ctx context.Context, q querier, account string) (decimal.Decimal, error) {
	total, err := l.balanceTx(ctx, q, account)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT amount FROM ledger_reservations WHERE account = ? AND state = ?`,
		account, string(ReservationPending))
	if err != nil {
		return decimal.Zero, fmt.Errorf("query pending reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		total = total.Sub(amt)
	}
	return total, rows.Err()
}

func (l *SQLiteLedger) Reserve(ctx context.Context, account, turnID, capability string, amount decimal.Decimal) (*Reservation, error) {
	if amount.IsNegative() {
		return nil, errors.New(errors.CodeInvalidInput, "reservation amount must not be negative", nil)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	available, err := l.availableTx(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	if available.LessThan(amount) {
		return nil, errors.New(errors.CodeQuotaExceeded, "insufficient credits", nil).
			WithContext("account", account).
			WithContext("requested", amount.String()).
			WithContext("available", available.String())
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
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_reservations (id, account, turn_id, capability, amount, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Account, r.TurnID, r.Capability, r.Amount.String(), string(r.State), r.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return r, nil
}

// settle transitions a pending reservation and optionally appends an entry
// in the same transaction.
func (l *SQLiteLedger) settle(ctx context.Context, reservationID string, newState ReservationState, entry *Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback()

	var account, turnID, capability, amount, state string
	err = tx.QueryRowContext(ctx,
		`SELECT account, turn_id, capability, amount, state FROM ledger_reservations WHERE id = ?`,
		reservationID).Scan(&account, &turnID, &capability, &amount, &state)
	if err == sql.ErrNoRows {
		return errors.New(errors.CodeNotFound, "unknown reservation", nil).WithContext("reservation_id", reservationID)
	}
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}
	if ReservationState(state) != ReservationPending {
		return errors.New(errors.CodeInvalidInput, "reservation already settled", nil).
			WithContext("reservation_id", reservationID).
			WithContext("state", state)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_reservations SET state = ? WHERE id = ?`,
		string(newState), reservationID); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}

	if entry != nil {
		entry.Account = account
		entry.TurnID = turnID
		entry.Capability = capability
		if entry.Reason == ReasonRefund {
			held, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("corrupt amount %q: %w", amount, err)
			}
			entry.Amount = held
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (id, account, turn_id, capability, amount, reason, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Account, entry.TurnID, entry.Capability,
			entry.Amount.String(), string(entry.Reason), entry.Note, entry.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	return tx.Commit()
}

func (l *SQLiteLedger) Finalize(ctx context.Context, reservationID string, actual decimal.Decimal) error {
	return l.settle(ctx, reservationID, ReservationFinalized, &Entry{
		ID:        uuid.NewString(),
		Amount:    actual.Neg(),
		Reason:    ReasonDebit,
		CreatedAt: time.Now().UTC(),
	})
}

func (l *SQLiteLedger) Refund(ctx context.Context, reservationID string, note string) error {
	return l.settle(ctx, reservationID, ReservationRefunded, &Entry{
		ID:        uuid.NewString(),
		Reason:    ReasonRefund,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
}

func (l *SQLiteLedger) Refill(ctx context.Context, account string, amount decimal.Decimal, periodKey string) error {
	if amount.IsNegative() {
		return errors.New(errors.CodeInvalidInput, "refill amount must not be negative", nil)
	}

	// The partial unique index on (account, period_key) makes the refill
	// idempotent across processes.
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_entries (id, account, amount, reason, note, period_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), account, amount.String(), string(ReasonRefill), periodKey, periodKey,
		time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert refill: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Entries(ctx context.Context, account string, limit int) ([]Entry, error) {
	query := `SELECT id, account, turn_id, capability, amount, reason, note, created_at
		 FROM ledger_entries WHERE account = ? ORDER BY rowid DESC`
	args := []any{account}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var amount string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Account, &e.TurnID, &e.Capability, &amount, (*string)(&e.Reason), &e.Note, &createdAt); err != nil {
			return nil, err
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingReservations returns holds created before the cutoff that are still
// pending.
func (l *SQLiteLedger) PendingReservations(ctx context.Context, before time.Time) ([]Reservation, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, account, turn_id, capability, amount, state, created_at
		 FROM ledger_reservations WHERE state = ? AND created_at < ?`,
		string(ReservationPending), before.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query pending reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		var amount string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Account, &r.TurnID, &r.Capability, &amount, (*string)(&r.State), &createdAt); err != nil {
			return nil, err
		}
		r.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Ledger = (*SQLiteLedger)(nil)
var _ ReservationLister = (*SQLiteLedger)(nil)
