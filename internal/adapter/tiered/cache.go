// Package tiered layers a local in-process cache over a shared remote
// one. Product reads hit the local tier almost always; the remote tier
// carries invalidations between replicas.
package tiered

import (
	"context"
	"time"

	"github.com/entgrid/entitled/internal/port/cache"
)

// Cache reads local first, then remote, backfilling local on a remote
// hit. Writes and deletes touch both tiers.
type Cache struct {
	local       cache.Cache
	remote      cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache. backfillTTL bounds how long a remote hit
// lives in the local tier.
func New(local, remote cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{local: local, remote: remote, backfillTTL: backfillTTL}
}

// Get checks the local tier, then the remote one.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.local.Set(ctx, key, val, c.backfillTTL)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to both tiers.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from the remote tier first. A local delete with the
// remote entry still live could be undone by a concurrent backfill;
// the reverse order cannot resurrect a deleted key locally for longer
// than backfillTTL.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	return c.local.Delete(ctx, key)
}
