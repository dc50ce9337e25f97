// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"

	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/llm"
	"github.com/praxislabs/praxis/pkg/memory"
)

// Entry metadata keys written by the engine for observation entries.
const (
	metaToolCallID = "tool_call_id"
	metaCapability = "capability"
)

// composeSystemPrompt assembles the persona framing for one turn. Section
// order is fixed: purpose, personality, principles, base prompt, then any
// channel framing and task framing, with the operator's append suffix always
// last so it can override everything before it.
func composeSystemPrompt(agent *core.Agent, req core.TurnRequest, recalled []string) string {
	var sections []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	add(agent.Purpose)
	add(agent.Personality)
	add(agent.Principles)
	add(agent.Prompt)
	add(req.EntrypointPrompt)

	if req.Task != nil {
		add(taskFraming(req.Task))
	}
	if len(recalled) > 0 {
		add("Relevant notes from prior conversations:\n- " + strings.Join(recalled, "\n- "))
	}

	add(agent.PromptAppend)

	return strings.Join(sections, "\n\n")
}

func taskFraming(task *core.TaskContext) string {
	var b strings.Builder
	b.WriteString("You are executing a scheduled autonomous task. No user is present; ")
	b.WriteString("carry out the task and report the outcome.\n")
	fmt.Fprintf(&b, "Task %s: %s", task.TaskID, task.Name)
	if task.Schedule != "" {
		fmt.Fprintf(&b, " (schedule: %s)", task.Schedule)
	}
	return b.String()
}

// historyMessages converts stored turn entries into model messages.
// Observation entries become tool results tied to their originating call.
func historyMessages(entries []memory.TurnEntry) []llm.Message {
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case memory.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: e.Content})
		case memory.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		case memory.RoleObservation:
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Content:    e.Content,
				ToolCallID: e.Metadata[metaToolCallID],
			})
		case memory.RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: e.Content})
		}
	}
	return out
}
