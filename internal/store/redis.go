package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ttlSecondsToDuration converts a stored TTL (0 meaning "no expiry", matching
// Envelope.TTLSeconds) into the duration redis.Client.Set expects.
func ttlSecondsToDuration(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		return 0
	}
	return time.Duration(ttlSeconds) * time.Second
}

// ReadThroughKV wraps a backing KV (Postgres or in-memory) with an optional
// Redis layer: Get checks Redis first and falls back to the backing store on
// a miss, populating Redis from the result; Put always writes through to
// both. A nil client disables the Redis layer entirely — Get/Put degrade to
// calling backing directly, a nil-receiver-safe pattern that spares callers
// from branching on whether Redis is configured.
type ReadThroughKV struct {
	backing   KV
	redis     redis.UniversalClient
	namespace string
}

// NewReadThroughKV builds a ReadThroughKV. client may be nil.
func NewReadThroughKV(backing KV, client redis.UniversalClient, namespace string) *ReadThroughKV {
	return &ReadThroughKV{backing: backing, redis: client, namespace: namespace}
}

func (r *ReadThroughKV) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

func (r *ReadThroughKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, r.redisKey(key)).Bytes()
		if err == nil {
			return val, true, nil
		}
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("store_redis_get_error")
		}
	}

	data, found, err := r.backing.Get(ctx, key)
	if err != nil || !found {
		return data, found, err
	}
	if r.redis != nil {
		if err := r.redis.Set(ctx, r.redisKey(key), data, 0).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("store_redis_backfill_error")
		}
	}
	return data, found, nil
}

func (r *ReadThroughKV) Put(ctx context.Context, key string, data []byte, ttlSeconds int, cacheType string) error {
	if err := r.backing.Put(ctx, key, data, ttlSeconds, cacheType); err != nil {
		return err
	}
	if r.redis != nil {
		ttl := ttlSecondsToDuration(ttlSeconds)
		if err := r.redis.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("store_redis_put_error")
		}
	}
	return nil
}
