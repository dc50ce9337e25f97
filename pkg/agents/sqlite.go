// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
)

// SQLiteStore persists agent definitions as JSON documents keyed by id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if err := ensureAgentSchema(db); err != nil {
		return nil, fmt.Errorf("ensure agent schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func ensureAgentSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			definition  TEXT NOT NULL,
			updated_at  INTEGER NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Agent, error) {
	var definition string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM agents WHERE id = ?`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "unknown agent", nil).WithContext("agent_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	var agent core.Agent
	if err := json.Unmarshal([]byte(definition), &agent); err != nil {
		return nil, fmt.Errorf("decode agent %s: %w", id, err)
	}
	return &agent, nil
}

func (s *SQLiteStore) Put(ctx context.Context, agent *core.Agent) error {
	if agent.ID == "" {
		return errors.New(errors.CodeInvalidInput, "agent id is required", nil)
	}
	definition, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, definition, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at
	`, agent.ID, string(definition), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*core.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM agents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*core.Agent
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}
		var agent core.Agent
		if err := json.Unmarshal([]byte(definition), &agent); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		out = append(out, &agent)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.CodeNotFound, "unknown agent", nil).WithContext("agent_id", id)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
