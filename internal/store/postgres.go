package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV stores envelopes in a single table keyed by (namespace, key),
// following a CREATE TABLE IF NOT EXISTS + upsert style.
type PostgresKV struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresKV returns a KV store scoped to namespace (one of
// "registrations", "publications", "classifications"), ensuring the
// backing table exists.
func NewPostgresKV(ctx context.Context, pool *pgxpool.Pool, namespace string) (*PostgresKV, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS kv_entries (
  namespace   TEXT NOT NULL,
  key         TEXT NOT NULL,
  data        JSONB NOT NULL,
  cache_type  TEXT NOT NULL DEFAULT '',
  ttl_seconds INTEGER NOT NULL DEFAULT 0,
  stored_at   TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (namespace, key)
);
`)
	if err != nil {
		return nil, err
	}
	return &PostgresKV{pool: pool, namespace: namespace}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT data, ttl_seconds, stored_at FROM kv_entries WHERE namespace=$1 AND key=$2
`, p.namespace, key)

	var data []byte
	var ttl int
	var storedAt time.Time
	if err := row.Scan(&data, &ttl, &storedAt); err != nil {
		return nil, false, nil //nolint:nilerr // not-found is not an error in this contract
	}
	env := Envelope{Timestamp: storedAt, TTLSeconds: ttl}
	if env.Expired(Clock()) {
		return nil, false, nil
	}
	return data, true, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, data []byte, ttlSeconds int, cacheType string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO kv_entries(namespace, key, data, cache_type, ttl_seconds, stored_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (namespace, key) DO UPDATE
  SET data=EXCLUDED.data, cache_type=EXCLUDED.cache_type, ttl_seconds=EXCLUDED.ttl_seconds, stored_at=EXCLUDED.stored_at
`, p.namespace, key, data, cacheType, ttlSeconds, Clock())
	return err
}
