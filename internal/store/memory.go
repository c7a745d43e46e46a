package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryKV is an in-memory KV store, the "memory_*" counterpart paired
// alongside every Postgres-backed store. Used for tests and as the backing
// store when no Postgres database is configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]Envelope
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string]Envelope{}}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	env, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if env.Expired(Clock()) {
		return nil, false, nil
	}
	return env.Data, true, nil
}

func (m *MemoryKV) Put(ctx context.Context, key string, data []byte, ttlSeconds int, cacheType string) error {
	env := Envelope{
		Timestamp:  Clock(),
		TTLSeconds: ttlSeconds,
		CacheType:  cacheType,
		Data:       json.RawMessage(append([]byte(nil), data...)),
	}
	m.mu.Lock()
	m.data[key] = env
	m.mu.Unlock()
	return nil
}
