// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the shared domain types passed between the execution
// engine, gateway, ledger, memory, and scheduler.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuthzState is the per-agent authorization state of a capability.
type AuthzState string

const (
	// AuthzDisabled means the capability cannot be invoked for this agent.
	AuthzDisabled AuthzState = "disabled"
	// AuthzPublic means any caller may trigger the capability.
	AuthzPublic AuthzState = "public"
	// AuthzPrivate means only the agent owner may trigger the capability.
	AuthzPrivate AuthzState = "private"
)

// Agent is the immutable configuration snapshot of one agent, read once per
// turn. Mutation happens only through an external configuration collaborator;
// concurrent turns each hold their own snapshot.
type Agent struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Owner string `yaml:"owner" json:"owner"`

	// Persona fields, assembled into the system framing each turn.
	Purpose      string `yaml:"purpose" json:"purpose,omitempty"`
	Personality  string `yaml:"personality" json:"personality,omitempty"`
	Principles   string `yaml:"principles" json:"principles,omitempty"`
	Prompt       string `yaml:"prompt" json:"prompt,omitempty"`
	PromptAppend string `yaml:"prompt_append" json:"prompt_append,omitempty"`

	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`

	// Capabilities maps capability name to its authorization state.
	// Names absent from the map are treated as disabled.
	Capabilities map[string]AuthzState `yaml:"capabilities" json:"capabilities,omitempty"`

	// SharedMemory makes public entrypoints share one rolling history per
	// thread key. Private (owner) entrypoints always use isolated keys.
	SharedMemory bool `yaml:"shared_memory" json:"shared_memory"`
}

// CapabilityState returns the authorization state for a capability name.
func (a *Agent) CapabilityState(name string) AuthzState {
	if a.Capabilities == nil {
		return AuthzDisabled
	}
	state, ok := a.Capabilities[name]
	if !ok {
		return AuthzDisabled
	}
	return state
}

// Caller identifies who triggered a turn.
type Caller struct {
	ID      string
	Channel string
}

// IsOwner reports whether the caller is the agent's owner.
func (c Caller) IsOwner(agent *Agent) bool {
	return c.ID != "" && c.ID == agent.Owner
}

// AutonomousChatKey is the reserved chat key prefix for scheduler-driven
// turns. Each task gets its own key so tasks never share history.
const AutonomousChatKey = "autonomous"

// AutonomousChatID returns the chat key for one autonomous task.
func AutonomousChatID(taskID string) string {
	return AutonomousChatKey + "-" + taskID
}

// ThreadKey derives the memory thread key for an agent/chat pair.
// Owner turns are isolated from public ones unless the agent shares memory.
func ThreadKey(agent *Agent, chatKey string, caller Caller) string {
	if strings.HasPrefix(chatKey, AutonomousChatKey) {
		return agent.ID + "-" + chatKey
	}
	if caller.IsOwner(agent) || !agent.SharedMemory {
		return agent.ID + "-" + chatKey + "-" + caller.ID
	}
	return agent.ID + "-" + chatKey
}

// TaskContext tags an autonomous turn with its originating task so persona
// framing can include it.
type TaskContext struct {
	TaskID   string
	Name     string
	Schedule string
}

// TurnRequest is one inbound trigger for the execution engine, produced by a
// channel adapter or by the scheduler.
type TurnRequest struct {
	AgentID string
	ChatKey string
	Caller  Caller
	Content string

	// EntrypointPrompt is channel-specific system framing, inserted between
	// the persona and the history.
	EntrypointPrompt string

	// Task is set only for autonomous turns.
	Task *TaskContext

	// Stream requests incremental delivery of the final answer.
	Stream bool
}

// CapabilityCallRecord summarizes one capability invocation inside a turn.
type CapabilityCallRecord struct {
	Name     string
	Cost     decimal.Decimal
	Latency  time.Duration
	Attempts int
	Err      string
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	TurnID          string
	Content         string
	Steps           int
	Interrupted     bool
	MaxStepsReached bool
	CapabilityCalls []CapabilityCallRecord
	PromptTokens    int
	CompletionTokens int
}
