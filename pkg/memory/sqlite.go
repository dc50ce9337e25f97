// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const entryTable = "turn_entries"

// SQLiteStore persists conversation history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed conversation store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureMemorySchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureMemorySchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			thread_key TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens INTEGER NOT NULL,
			metadata_json TEXT,
			attachments_json TEXT,
			created_at INTEGER NOT NULL
		);`, entryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_thread ON %s(thread_key);`, entryTable, entryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_turn ON %s(turn_id);`, entryTable, entryTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves the thread history trimmed to tokenBudget.
func (s *SQLiteStore) Load(ctx context.Context, threadKey string, tokenBudget int) ([]TurnEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, turn_id, role, content, tokens, metadata_json, attachments_json, created_at
		FROM %s WHERE thread_key = ? ORDER BY rowid ASC
	`, entryTable), threadKey)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadKey, err)
	}
	defer rows.Close()

	var entries []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var metadataJSON, attachmentsJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.TurnID, &e.Role, &e.Content, &e.Tokens, &metadataJSON, &attachmentsJSON, &createdAt); err != nil {
			return nil, err
		}
		e.ThreadKey = threadKey
		e.CreatedAt = time.UnixMilli(createdAt)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode entry metadata %s: %w", e.ID, err)
			}
		}
		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON.String), &e.Attachments); err != nil {
				return nil, fmt.Errorf("decode entry attachments %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tokenBudget > 0 {
		return TrimToBudget(entries, tokenBudget), nil
	}
	return entries, nil
}

// AppendBatch appends the entries of one turn in a single transaction.
func (s *SQLiteStore) AppendBatch(ctx context.Context, threadKey string, entries []TurnEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, thread_key, turn_id, role, content, tokens, metadata_json, attachments_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entryTable))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		stored := e.Redacted()
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		stored.EnsureTokens()

		var metadataJSON, attachmentsJSON []byte
		if len(stored.Metadata) > 0 {
			if metadataJSON, err = json.Marshal(stored.Metadata); err != nil {
				return err
			}
		}
		if len(stored.Attachments) > 0 {
			if attachmentsJSON, err = json.Marshal(stored.Attachments); err != nil {
				return err
			}
		}

		if _, err := stmt.ExecContext(ctx,
			stored.ID, threadKey, stored.TurnID, string(stored.Role), stored.Content,
			stored.Tokens, nullable(metadataJSON), nullable(attachmentsJSON),
			stored.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", stored.ID, err)
		}
	}

	return tx.Commit()
}

// Trim permanently drops oldest entries until the history fits tokenBudget.
func (s *SQLiteStore) Trim(ctx context.Context, threadKey string, tokenBudget int) error {
	entries, err := s.Load(ctx, threadKey, 0)
	if err != nil {
		return err
	}
	kept := TrimToBudget(entries, tokenBudget)
	if len(kept) == len(entries) {
		return nil
	}

	keptIDs := make(map[string]bool, len(kept))
	for _, e := range kept {
		keptIDs[e.ID] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		if keptIDs[e.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", entryTable), e.ID); err != nil {
			return err
		}
	}
	// A truncated survivor replaces its stored copy.
	for _, e := range kept {
		if e.Metadata[MetaTruncated] == "true" {
			md, _ := json.Marshal(e.Metadata)
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET content = ?, tokens = ?, metadata_json = ? WHERE id = ?", entryTable),
				e.Content, e.Tokens, string(md), e.ID); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Clear removes all entries for a thread.
func (s *SQLiteStore) Clear(ctx context.Context, threadKey string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE thread_key = ?", entryTable), threadKey)
	return err
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ Store = (*SQLiteStore)(nil)
