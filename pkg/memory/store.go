// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "context"

// Store persists per-thread conversation history. Implementations must keep
// entries strictly ordered and append batches atomically: either the whole
// turn is visible or none of it.
type Store interface {
	// Load retrieves the thread history trimmed to tokenBudget.
	// A budget of zero loads the full history.
	Load(ctx context.Context, threadKey string, tokenBudget int) ([]TurnEntry, error)

	// AppendBatch appends the entries of one completed turn atomically.
	// Entries are redacted before they are persisted.
	AppendBatch(ctx context.Context, threadKey string, entries []TurnEntry) error

	// Trim permanently removes oldest entries until the stored history fits
	// tokenBudget, honoring the same rules as Load.
	Trim(ctx context.Context, threadKey string, tokenBudget int) error

	// Clear removes all entries for a thread.
	Clear(ctx context.Context, threadKey string) error
}
