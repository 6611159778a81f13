// Package keyedlock provides per-key mutual exclusion for regeneration work.
package keyedlock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed serializes work per key while letting distinct keys proceed
// concurrently. Regeneration holds the key for the whole sweep so two
// workers never race to overwrite the same certificate material.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Keyed lock set.
func New() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Run executes fn while holding the lock for key. Blocks if another
// caller holds the same key. Returns ctx.Err() if the context is
// cancelled while waiting. A nil Keyed runs fn directly.
func (k *Keyed) Run(ctx context.Context, key string, fn func() error) error {
	if k == nil {
		return fn()
	}

	e := k.acquire(key)
	defer k.release(key)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	return fn()
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
