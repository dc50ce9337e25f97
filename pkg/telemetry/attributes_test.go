// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "testing"

func TestTurnAttributes(t *testing.T) {
	attrs := TurnAttributes("agent-1", "turn-1", "agent-1-chat", "api", 8)
	if len(attrs) != 5 {
		t.Fatalf("expected 5 attributes, got %d", len(attrs))
	}

	found := false
	for _, attr := range attrs {
		if string(attr.Key) == AttrAgentID && attr.Value.AsString() == "agent-1" {
			found = true
		}
	}
	if !found {
		t.Error("agent id attribute missing")
	}
}

func TestCapabilityAttributes(t *testing.T) {
	attrs := CapabilityAttributes("web.search", "10", 2, true)
	for _, attr := range attrs {
		if string(attr.Key) == AttrCapabilityAttempts && attr.Value.AsInt64() != 2 {
			t.Errorf("expected attempts 2, got %d", attr.Value.AsInt64())
		}
	}
}
