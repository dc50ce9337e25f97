// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for praxis telemetry. These follow OpenTelemetry
// naming conventions where applicable.
const (
	AttrAgentID    = "praxis.agent.id"
	AttrAgentModel = "praxis.agent.model"
	AttrAgentOwner = "praxis.agent.owner"

	AttrTurnID      = "praxis.turn.id"
	AttrThreadKey   = "praxis.turn.thread_key"
	AttrTurnStep    = "praxis.turn.step"
	AttrTurnMaxStep = "praxis.turn.max_steps"
	AttrEntrypoint  = "praxis.turn.entrypoint"

	AttrCapabilityName     = "praxis.capability.name"
	AttrCapabilityCost     = "praxis.capability.cost"
	AttrCapabilityAttempts = "praxis.capability.attempts"
	AttrCapabilitySuccess  = "praxis.capability.success"

	AttrLedgerAccount     = "praxis.ledger.account"
	AttrLedgerReservation = "praxis.ledger.reservation_id"

	AttrTaskID       = "praxis.task.id"
	AttrTaskSchedule = "praxis.task.schedule"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// TurnAttributes returns span attributes describing one turn.
func TurnAttributes(agentID, turnID, threadKey, entrypoint string, maxSteps int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrTurnID, turnID),
		attribute.String(AttrThreadKey, threadKey),
		attribute.String(AttrEntrypoint, entrypoint),
		attribute.Int(AttrTurnMaxStep, maxSteps),
	}
}

// CapabilityAttributes returns span attributes describing one invocation.
func CapabilityAttributes(name, cost string, attempts int, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCapabilityName, name),
		attribute.String(AttrCapabilityCost, cost),
		attribute.Int(AttrCapabilityAttempts, attempts),
		attribute.Bool(AttrCapabilitySuccess, success),
	}
}

// TaskAttributes returns span attributes describing one autonomous task run.
func TaskAttributes(agentID, taskID, schedule string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskSchedule, schedule),
	}
}
