package store

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/singleflight"
)

// Cache is a read-through, TTL-bounded, single-flight-protected wrapper over
// a KV backend, implementing spec.md §4.2's "at most one producer per key in
// flight" invariant (design note in spec.md §9: "Cache concurrency requires
// a per-key single-flight primitive... implement explicitly"). golang.org/x/sync
// already backs the discovery fan-out via errgroup, so singleflight from
// the same module is the natural companion rather than a hand-rolled mutex map.
type Cache[T any] struct {
	kv        KV
	group     singleflight.Group
	ttl       int
	cacheType string
}

// NewCache constructs a typed cache over a raw KV store.
func NewCache[T any](kv KV, ttlSeconds int, cacheType string) *Cache[T] {
	return &Cache[T]{kv: kv, ttl: ttlSeconds, cacheType: cacheType}
}

// GetOrProduce returns the cached value for key if present and unexpired;
// otherwise it invokes produce exactly once even under concurrent callers
// for the same key, stores the result, and returns it to all waiters.
func (c *Cache[T]) GetOrProduce(ctx context.Context, key string, produce func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := c.kv.Get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, err
		}
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check after winning the single-flight race: another goroutine
		// may have populated the key while we queued behind a prior Do call
		// for a different key cohort sharing this group.
		if raw, ok, err := c.kv.Get(ctx, key); err == nil && ok {
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
		produced, err := produce(ctx)
		if err != nil {
			return zero, err
		}
		data, err := json.Marshal(produced)
		if err != nil {
			return zero, err
		}
		if err := c.kv.Put(ctx, key, data, c.ttl, c.cacheType); err != nil {
			return zero, err
		}
		return produced, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
