// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/praxislabs/praxis/pkg/errors"
)

func newSQLiteTaskStore(t *testing.T) *SQLiteTaskStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteTaskStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteTaskStore failed: %v", err)
	}
	return store
}

func TestSQLiteTaskStoreRoundTrip(t *testing.T) {
	store := newSQLiteTaskStore(t)
	ctx := context.Background()

	task := &Task{
		ID:       "morning-digest",
		AgentID:  "helper",
		Name:     "Morning digest",
		Prompt:   "summarize overnight activity",
		Schedule: "@daily",
	}
	if err := store.Put(ctx, task); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if task.CreatedAt.IsZero() {
		t.Error("Put did not stamp CreatedAt")
	}

	got, err := store.Get(ctx, "morning-digest")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AgentID != "helper" || got.Prompt != task.Prompt || got.Schedule != "@daily" {
		t.Errorf("task did not round-trip: %+v", got)
	}
	if got.CreatedAt.UnixMilli() != task.CreatedAt.UnixMilli() {
		t.Errorf("created_at did not round-trip: %v vs %v", got.CreatedAt, task.CreatedAt)
	}
}

func TestSQLiteTaskStoreUpsertKeepsCreatedAt(t *testing.T) {
	store := newSQLiteTaskStore(t)
	ctx := context.Background()

	task := &Task{ID: "task-1", AgentID: "helper", Prompt: "first", Schedule: "@hourly"}
	if err := store.Put(ctx, task); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	original, _ := store.Get(ctx, "task-1")

	updated := &Task{ID: "task-1", AgentID: "helper", Prompt: "second", Schedule: "@every 5m"}
	if err := store.Put(ctx, updated); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Prompt != "second" || got.Schedule != "@every 5m" {
		t.Errorf("upsert did not replace fields: %+v", got)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("upsert moved created_at: %v vs %v", got.CreatedAt, original.CreatedAt)
	}
}

func TestSQLiteTaskStorePutValidates(t *testing.T) {
	store := newSQLiteTaskStore(t)
	ctx := context.Background()

	err := store.Put(ctx, &Task{ID: "task-1", AgentID: "helper", Prompt: "run", Schedule: "not a schedule"})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected invalid input for bad schedule, got %v", err)
	}
	err = store.Put(ctx, &Task{ID: "task-2", AgentID: "helper", Schedule: "@hourly"})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected invalid input for missing prompt, got %v", err)
	}
}

func TestSQLiteTaskStoreListAndDelete(t *testing.T) {
	store := newSQLiteTaskStore(t)
	ctx := context.Background()

	for _, id := range []string{"b-task", "a-task"} {
		if err := store.Put(ctx, &Task{ID: id, AgentID: "helper", Prompt: "run", Schedule: "@hourly"}); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}

	tasks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "a-task" || tasks[1].ID != "b-task" {
		t.Fatalf("expected id-ordered listing, got %+v", tasks)
	}

	if err := store.Delete(ctx, "a-task"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "a-task"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "a-task"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("expected not found deleting twice, got %v", err)
	}

	remaining, _ := store.List(ctx)
	if len(remaining) != 1 || remaining[0].ID != "b-task" {
		t.Errorf("delete removed the wrong task: %+v", remaining)
	}
}
