// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/praxislabs/praxis/pkg/errors"
)

// SQLiteTaskStore persists task definitions in SQLite.
type SQLiteTaskStore struct {
	db *sql.DB
}

func NewSQLiteTaskStore(db *sql.DB) (*SQLiteTaskStore, error) {
	if err := ensureTaskSchema(db); err != nil {
		return nil, fmt.Errorf("ensure task schema: %w", err)
	}
	return &SQLiteTaskStore{db: db}, nil
}

func ensureTaskSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS autonomous_tasks (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			prompt     TEXT NOT NULL,
			schedule   TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_autonomous_tasks_agent ON autonomous_tasks(agent_id);
	`)
	return err
}

func (s *SQLiteTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, name, prompt, schedule, created_at
		FROM autonomous_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "unknown task", nil).WithContext("task_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

func (s *SQLiteTaskStore) Put(ctx context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO autonomous_tasks (id, agent_id, name, prompt, schedule, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			name = excluded.name,
			prompt = excluded.prompt,
			schedule = excluded.schedule
	`, task.ID, task.AgentID, task.Name, task.Prompt, task.Schedule, task.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

func (s *SQLiteTaskStore) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, name, prompt, schedule, created_at
		FROM autonomous_tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *SQLiteTaskStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM autonomous_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.CodeNotFound, "unknown task", nil).WithContext("task_id", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var createdAt int64
	if err := row.Scan(&task.ID, &task.AgentID, &task.Name, &task.Prompt, &task.Schedule, &createdAt); err != nil {
		return nil, err
	}
	task.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &task, nil
}

var _ Store = (*SQLiteTaskStore)(nil)
