// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
)

func TestThreadKeyIsolation(t *testing.T) {
	agent := &Agent{ID: "helper", Owner: "owner-1"}
	owner := Caller{ID: "owner-1", Channel: "api"}
	visitor := Caller{ID: "user-7", Channel: "api"}

	// Without shared memory every caller gets an isolated thread.
	if got := ThreadKey(agent, "dm", owner); got != "helper-dm-owner-1" {
		t.Errorf("owner thread: %s", got)
	}
	if got := ThreadKey(agent, "dm", visitor); got != "helper-dm-user-7" {
		t.Errorf("visitor thread: %s", got)
	}

	// Shared memory pools public callers onto one thread, but the owner
	// stays isolated.
	agent.SharedMemory = true
	if got := ThreadKey(agent, "dm", visitor); got != "helper-dm" {
		t.Errorf("shared visitor thread: %s", got)
	}
	if got := ThreadKey(agent, "dm", owner); got != "helper-dm-owner-1" {
		t.Errorf("shared owner thread: %s", got)
	}
}

func TestThreadKeyAutonomous(t *testing.T) {
	agent := &Agent{ID: "helper", Owner: "owner-1", SharedMemory: true}
	chatKey := AutonomousChatID("task-9")
	if chatKey != "autonomous-task-9" {
		t.Fatalf("unexpected chat key %s", chatKey)
	}
	// Autonomous threads are per task, never pooled and never
	// caller-suffixed.
	got := ThreadKey(agent, chatKey, Caller{ID: "owner-1", Channel: "scheduler"})
	if got != "helper-autonomous-task-9" {
		t.Errorf("autonomous thread: %s", got)
	}
}

func TestCapabilityState(t *testing.T) {
	agent := &Agent{
		ID:    "helper",
		Owner: "owner-1",
		Capabilities: map[string]AuthzState{
			"web.search":      AuthzPublic,
			"wallet.transfer": AuthzPrivate,
			"admin.wipe":      AuthzDisabled,
		},
	}
	if got := agent.CapabilityState("web.search"); got != AuthzPublic {
		t.Errorf("web.search: %s", got)
	}
	if got := agent.CapabilityState("wallet.transfer"); got != AuthzPrivate {
		t.Errorf("wallet.transfer: %s", got)
	}
	if got := agent.CapabilityState("admin.wipe"); got != AuthzDisabled {
		t.Errorf("admin.wipe: %s", got)
	}
	// Unlisted names are disabled, not public.
	if got := agent.CapabilityState("web.fetch"); got != AuthzDisabled {
		t.Errorf("unlisted capability: %s", got)
	}
	if got := (&Agent{}).CapabilityState("web.search"); got != AuthzDisabled {
		t.Errorf("nil capability map: %s", got)
	}
}

func TestCallerIsOwner(t *testing.T) {
	agent := &Agent{ID: "helper", Owner: "owner-1"}
	if !(Caller{ID: "owner-1"}).IsOwner(agent) {
		t.Error("owner not recognized")
	}
	if (Caller{ID: "user-2"}).IsOwner(agent) {
		t.Error("stranger treated as owner")
	}
	// An empty caller never matches an agent without an owner.
	if (Caller{}).IsOwner(&Agent{ID: "x"}) {
		t.Error("empty caller matched empty owner")
	}
}

func TestEnsureTurnID(t *testing.T) {
	ctx, id := EnsureTurnID(context.Background())
	if id == "" {
		t.Fatal("no turn id generated")
	}
	ctx2, id2 := EnsureTurnID(ctx)
	if id2 != id {
		t.Errorf("existing turn id replaced: %s != %s", id2, id)
	}
	if ctx2 != ctx {
		t.Error("context rewrapped for existing turn id")
	}
}

func TestCallerFromContext(t *testing.T) {
	caller := Caller{ID: "user-1", Channel: "api"}
	ctx := WithCaller(context.Background(), caller)
	got, ok := CallerFromContext(ctx)
	if !ok || got != caller {
		t.Errorf("caller roundtrip failed: %+v %v", got, ok)
	}
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Error("caller found in empty context")
	}
}
