// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the token-bounded conversation history for agent
// threads: ordered turn entries, oldest-first trimming, redaction of
// sensitive values, and in-memory / SQLite backends.
package memory

import (
	"strings"
	"time"
)

// Role classifies a turn entry.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "observation" // capability result fed back to the model
	RoleSystem      Role = "system"
)

// TurnEntry is one element of a thread's ordered history. Entries are
// append-only; trimming removes whole entries from the oldest end and never
// mutates surviving ones.
type TurnEntry struct {
	ID        string            `json:"id"`
	ThreadKey string            `json:"thread_key"`
	TurnID    string            `json:"turn_id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Tokens    int               `json:"tokens"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	// Attachments holds structured attachment references (URLs, storage keys).
	Attachments []string `json:"attachments,omitempty"`
	// Sensitive maps a label to a value inside Content that must not be
	// persisted verbatim. The in-turn copy keeps the value; the stored copy
	// is redacted.
	Sensitive map[string]string `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// Metadata keys set by the memory layer.
const (
	MetaTruncated   = "truncated"
	MetaInterrupted = "interrupted"
	MetaRedacted    = "redacted"
	MetaTaskID      = "task_id"
	MetaTaskName    = "task_name"
	MetaSchedule    = "task_schedule"
)

// EstimateTokens approximates the token count of a string. Matches the
// rough 4-chars-per-token heuristic used for budget enforcement everywhere
// an exact tokenizer is unavailable.
func EstimateTokens(content string) int {
	n := len(content) / 4
	if n == 0 && content != "" {
		n = 1
	}
	return n
}

// EnsureTokens fills the Tokens field if unset.
func (e *TurnEntry) EnsureTokens() {
	if e.Tokens == 0 {
		e.Tokens = EstimateTokens(e.Content)
	}
}

// Redacted returns the storable copy of the entry: every sensitive value is
// replaced by a "[redacted:<label>]" marker. The receiver is not mutated.
func (e TurnEntry) Redacted() TurnEntry {
	if len(e.Sensitive) == 0 {
		return e
	}
	stored := e
	for label, value := range e.Sensitive {
		if value == "" {
			continue
		}
		stored.Content = strings.ReplaceAll(stored.Content, value, "[redacted:"+label+"]")
	}
	if stored.Metadata == nil {
		stored.Metadata = make(map[string]string)
	} else {
		md := make(map[string]string, len(stored.Metadata)+1)
		for k, v := range stored.Metadata {
			md[k] = v
		}
		stored.Metadata = md
	}
	stored.Metadata[MetaRedacted] = "true"
	stored.Sensitive = nil
	stored.Tokens = EstimateTokens(stored.Content)
	return stored
}

// TotalTokens sums the token counts of a sequence.
func TotalTokens(entries []TurnEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Tokens
	}
	return total
}
