// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "unicode/utf8"

// TrimToBudget returns the suffix of entries whose cumulative token count
// fits budget, dropping whole entries from the oldest end first. The most
// recent user entry is never dropped: if it cannot fit it is truncated
// instead and the truncation is recorded in its metadata.
//
// System entries never reach the rolling window (persona framing is
// re-derived each turn, not stored), but any that do are treated like
// ordinary entries so the budget invariant holds regardless.
func TrimToBudget(entries []TurnEntry, budget int) []TurnEntry {
	if budget <= 0 || len(entries) == 0 {
		return nil
	}
	if TotalTokens(entries) <= budget {
		return entries
	}

	lastUser := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == RoleUser {
			lastUser = i
			break
		}
	}

	// Reserve room for the most recent user entry before anything else.
	used := 0
	var userEntry TurnEntry
	if lastUser >= 0 {
		userEntry = entries[lastUser]
		if userEntry.Tokens > budget {
			userEntry = truncateEntry(userEntry, budget)
		}
		used = userEntry.Tokens
	}

	// Walk newest to oldest, keeping whole entries while they fit.
	keep := make(map[int]bool, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if i == lastUser {
			continue
		}
		if used+entries[i].Tokens > budget {
			break
		}
		keep[i] = true
		used += entries[i].Tokens
	}

	result := make([]TurnEntry, 0, len(keep)+1)
	for i, e := range entries {
		if i == lastUser {
			result = append(result, userEntry)
		} else if keep[i] {
			result = append(result, e)
		}
	}
	return result
}

// truncateEntry cuts an entry's content down to at most maxTokens and
// records the truncation. The original entry is not mutated.
func truncateEntry(e TurnEntry, maxTokens int) TurnEntry {
	if maxTokens < 1 {
		maxTokens = 1
	}
	maxChars := maxTokens * 4
	if len(e.Content) > maxChars {
		// Back up to a rune boundary so the cut never persists invalid UTF-8.
		for maxChars > 0 && !utf8.RuneStart(e.Content[maxChars]) {
			maxChars--
		}
		e.Content = e.Content[:maxChars]
	}
	e.Tokens = EstimateTokens(e.Content)
	if e.Tokens > maxTokens {
		e.Tokens = maxTokens
	}
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[MetaTruncated] = "true"
	e.Metadata = md
	return e
}
