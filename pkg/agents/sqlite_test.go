// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package agents

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
)

func newSQLiteAgentStore(t *testing.T) *SQLiteStore {
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

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newSQLiteAgentStore(t)
	ctx := context.Background()

	agent := &core.Agent{
		ID:          "helper",
		Name:        "Helper",
		Owner:       "owner-1",
		Purpose:     "answers questions about the product",
		Personality: "direct, occasionally dry",
		Model:       "llama3",
		Temperature: 0.2,
		Capabilities: map[string]core.AuthzState{
			"web.search": core.AuthzPublic,
			"files.read": core.AuthzPrivate,
		},
		SharedMemory: true,
	}
	if err := store.Put(ctx, agent); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "helper")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Owner != "owner-1" || got.Purpose != agent.Purpose || got.Temperature != 0.2 {
		t.Errorf("agent did not round-trip: %+v", got)
	}
	if got.CapabilityState("web.search") != core.AuthzPublic {
		t.Errorf("capability state lost: %v", got.Capabilities)
	}
	if got.CapabilityState("files.read") != core.AuthzPrivate {
		t.Errorf("capability state lost: %v", got.Capabilities)
	}
	if !got.SharedMemory {
		t.Error("shared memory flag lost")
	}
}

func TestSQLiteStoreUpsertReplacesDefinition(t *testing.T) {
	store := newSQLiteAgentStore(t)
	ctx := context.Background()

	_ = store.Put(ctx, &core.Agent{ID: "helper", Name: "Helper", Owner: "owner-1", Model: "llama3"})
	if err := store.Put(ctx, &core.Agent{ID: "helper", Name: "Helper v2", Owner: "owner-2", Model: "llama3"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "helper")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Helper v2" || got.Owner != "owner-2" {
		t.Errorf("upsert did not replace the definition: %+v", got)
	}
}

func TestSQLiteStoreListAndDelete(t *testing.T) {
	store := newSQLiteAgentStore(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha"} {
		if err := store.Put(ctx, &core.Agent{ID: id, Name: id, Owner: "owner-1", Model: "llama3"}); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "alpha" || listed[1].ID != "zeta" {
		t.Fatalf("expected id-ordered listing, got %+v", listed)
	}

	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "alpha"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "alpha"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("expected not found deleting twice, got %v", err)
	}
}

func TestSQLiteStorePutRequiresID(t *testing.T) {
	store := newSQLiteAgentStore(t)

	err := store.Put(context.Background(), &core.Agent{Name: "anonymous"})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected invalid input for missing id, got %v", err)
	}
}
