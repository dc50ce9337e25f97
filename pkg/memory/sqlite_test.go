// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestSQLiteStoreAppendAndLoad(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.AppendBatch(ctx, "agent-1-chat-1", []TurnEntry{
		{Role: RoleUser, Content: "hello", Metadata: map[string]string{MetaTaskID: "task-1"}},
		{Role: RoleAssistant, Content: "hi there", Attachments: []string{"s3://bucket/report.pdf"}},
	})
	if err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}

	entries, err := store.Load(ctx, "agent-1-chat-1", 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" {
			t.Error("entry ID not assigned")
		}
		if e.ThreadKey != "agent-1-chat-1" {
			t.Errorf("wrong thread key: %s", e.ThreadKey)
		}
		if e.Tokens == 0 {
			t.Error("token count not filled")
		}
		if e.CreatedAt.IsZero() {
			t.Error("created timestamp not set")
		}
	}
	if entries[0].Metadata[MetaTaskID] != "task-1" {
		t.Errorf("metadata did not round-trip: %+v", entries[0].Metadata)
	}
	if len(entries[1].Attachments) != 1 || entries[1].Attachments[0] != "s3://bucket/report.pdf" {
		t.Errorf("attachments did not round-trip: %+v", entries[1].Attachments)
	}
}

func TestSQLiteStoreThreadIsolation(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_ = store.AppendBatch(ctx, "thread-a", []TurnEntry{{Role: RoleUser, Content: "a"}})
	_ = store.AppendBatch(ctx, "thread-b", []TurnEntry{{Role: RoleUser, Content: "b"}})

	a, _ := store.Load(ctx, "thread-a", 0)
	b, _ := store.Load(ctx, "thread-b", 0)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one entry per thread, got %d and %d", len(a), len(b))
	}
	if a[0].Content != "a" || b[0].Content != "b" {
		t.Error("entries crossed thread boundaries")
	}
}

func TestSQLiteStoreRedactsBeforePersisting(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.AppendBatch(ctx, "t", []TurnEntry{{
		Role:      RoleObservation,
		Content:   "authorized with key sk-12345",
		Sensitive: map[string]string{"api_key": "sk-12345"},
	}})
	if err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}

	entries, _ := store.Load(ctx, "t", 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if strings.Contains(entries[0].Content, "sk-12345") {
		t.Errorf("sensitive value persisted verbatim: %q", entries[0].Content)
	}
	if !strings.Contains(entries[0].Content, "[redacted:api_key]") {
		t.Errorf("expected redaction marker, got %q", entries[0].Content)
	}
	if entries[0].Metadata[MetaRedacted] != "true" {
		t.Errorf("redaction not flagged in metadata: %+v", entries[0].Metadata)
	}
}

func TestSQLiteStoreLoadAppliesBudget(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_ = store.AppendBatch(ctx, "t", []TurnEntry{
		{Role: RoleUser, Content: strings.Repeat("x", 400)},      // 100 tokens
		{Role: RoleAssistant, Content: strings.Repeat("y", 400)}, // 100 tokens
		{Role: RoleUser, Content: strings.Repeat("z", 400)},      // 100 tokens
	})

	entries, err := store.Load(ctx, "t", 150)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the newest user entry within budget, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Content, "z") {
		t.Errorf("wrong survivor: %q", entries[0].Content[:10])
	}

	// A budgeted Load must not delete anything.
	all, _ := store.Load(ctx, "t", 0)
	if len(all) != 3 {
		t.Errorf("budgeted load mutated the stored history: %d entries left", len(all))
	}
}

func TestSQLiteStoreTrimDeletesOldestPermanently(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_ = store.AppendBatch(ctx, "t", []TurnEntry{
		{Role: RoleUser, Content: strings.Repeat("x", 400)},      // 100 tokens
		{Role: RoleAssistant, Content: strings.Repeat("y", 400)}, // 100 tokens
		{Role: RoleUser, Content: strings.Repeat("z", 400)},      // 100 tokens
	})

	if err := store.Trim(ctx, "t", 200); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	entries, _ := store.Load(ctx, "t", 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 survivors after trim, got %d", len(entries))
	}
	if entries[0].Role != RoleAssistant || entries[1].Role != RoleUser {
		t.Errorf("trim removed the wrong end: %v then %v", entries[0].Role, entries[1].Role)
	}
}

func TestSQLiteStoreTrimPersistsTruncatedSurvivor(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_ = store.AppendBatch(ctx, "t", []TurnEntry{
		{Role: RoleUser, Content: strings.Repeat("x", 400)}, // 100 tokens
	})

	if err := store.Trim(ctx, "t", 50); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	entries, _ := store.Load(ctx, "t", 0)
	if len(entries) != 1 {
		t.Fatalf("the last user entry must survive, got %d entries", len(entries))
	}
	if len(entries[0].Content) != 200 {
		t.Errorf("expected content cut to 200 chars, got %d", len(entries[0].Content))
	}
	if entries[0].Metadata[MetaTruncated] != "true" {
		t.Errorf("truncation not recorded in stored metadata: %+v", entries[0].Metadata)
	}
}

func TestSQLiteStoreClear(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_ = store.AppendBatch(ctx, "keep", []TurnEntry{{Role: RoleUser, Content: "stays"}})
	_ = store.AppendBatch(ctx, "drop", []TurnEntry{{Role: RoleUser, Content: "goes"}})

	if err := store.Clear(ctx, "drop"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	dropped, _ := store.Load(ctx, "drop", 0)
	if len(dropped) != 0 {
		t.Errorf("expected cleared thread to be empty, got %d entries", len(dropped))
	}
	kept, _ := store.Load(ctx, "keep", 0)
	if len(kept) != 1 {
		t.Errorf("clear leaked into another thread: %d entries", len(kept))
	}
}
