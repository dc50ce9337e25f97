// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"

	"github.com/praxislabs/praxis/pkg/errors"
)

// threadLocks serializes turns per thread key. Locks are created on demand
// and removed once the last holder or waiter is gone.
type threadLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{entries: make(map[string]*lockEntry)}
}

// acquire takes the lock for threadKey. With reject set, a busy thread fails
// immediately instead of queueing. The returned release function must be
// called exactly once.
func (t *threadLocks) acquire(ctx context.Context, threadKey string, reject bool) (func(), error) {
	t.mu.Lock()
	entry, ok := t.entries[threadKey]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		t.entries[threadKey] = entry
	}
	entry.refs++
	t.mu.Unlock()

	if reject {
		select {
		case entry.sem <- struct{}{}:
		default:
			t.unref(threadKey, entry)
			return nil, errors.New(errors.CodeThreadBusy, "thread is processing another turn", nil).
				WithContext("thread_key", threadKey)
		}
	} else {
		select {
		case entry.sem <- struct{}{}:
		case <-ctx.Done():
			t.unref(threadKey, entry)
			return nil, errors.New(errors.CodeTimeout, "canceled while waiting for thread", ctx.Err()).
				WithContext("thread_key", threadKey)
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-entry.sem
			t.unref(threadKey, entry)
		})
	}
	return release, nil
}

func (t *threadLocks) unref(threadKey string, entry *lockEntry) {
	t.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(t.entries, threadKey)
	}
	t.mu.Unlock()
}
