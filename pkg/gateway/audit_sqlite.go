// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SQLiteAuditLog persists invocation records in SQLite.
type SQLiteAuditLog struct {
	db *sql.DB
}

// NewSQLiteAuditLog creates a SQLite-backed audit log and ensures schema.
func NewSQLiteAuditLog(db *sql.DB) (*SQLiteAuditLog, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureInvocationAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteAuditLog{db: db}, nil
}

func ensureInvocationAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invocation_audit (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			turn_id     TEXT NOT NULL DEFAULT '',
			caller_id   TEXT NOT NULL DEFAULT '',
			capability  TEXT NOT NULL,
			args_json   TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			error_text  TEXT NOT NULL DEFAULT '',
			cost        TEXT NOT NULL DEFAULT '0',
			attempts    INTEGER NOT NULL DEFAULT 0,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocation_audit_agent ON invocation_audit(agent_id);
		CREATE INDEX IF NOT EXISTS idx_invocation_audit_turn ON invocation_audit(turn_id);
		CREATE INDEX IF NOT EXISTS idx_invocation_audit_status ON invocation_audit(status);
	`)
	return err
}

func (a *SQLiteAuditLog) Record(ctx context.Context, rec InvocationRecord) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO invocation_audit (
			id, agent_id, turn_id, caller_id, capability, args_json, status, error_text, cost, attempts, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.AgentID,
		rec.TurnID,
		rec.CallerID,
		rec.Capability,
		rec.ArgsJSON,
		string(rec.Status),
		rec.Error,
		rec.Cost.String(),
		rec.Attempts,
		rec.StartedAt.UnixMilli(),
		rec.FinishedAt.UnixMilli(),
	)
	return err
}

func (a *SQLiteAuditLog) List(ctx context.Context, filter AuditFilter) ([]InvocationRecord, error) {
	query := `
		SELECT id, agent_id, turn_id, caller_id, capability, args_json, status, error_text, cost, attempts, started_at, finished_at
		FROM invocation_audit
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.AgentID != "" {
		addFilter("agent_id = ?", filter.AgentID)
	}
	if filter.TurnID != "" {
		addFilter("turn_id = ?", filter.TurnID)
	}
	if filter.Capability != "" {
		addFilter("capability = ?", filter.Capability)
	}
	if filter.Status != "" {
		addFilter("status = ?", string(filter.Status))
	}
	query += where + " ORDER BY started_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var (
			rec      InvocationRecord
			cost     string
			started  int64
			finished int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.AgentID,
			&rec.TurnID,
			&rec.CallerID,
			&rec.Capability,
			&rec.ArgsJSON,
			(*string)(&rec.Status),
			&rec.Error,
			&cost,
			&rec.Attempts,
			&started,
			&finished,
		); err != nil {
			return nil, err
		}
		rec.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ AuditLog = (*SQLiteAuditLog)(nil)
