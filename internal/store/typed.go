package store

import (
	"context"
	"encoding/json"

	"manifold/internal/trialmodel"
)

// RegistrationStore is the read-through Registrations store (keyed by
// trialId). Registrations are created on first encounter and never mutated
// (spec.md §3 Lifecycle), so Put is effectively write-once per key.
type RegistrationStore struct{ cache *Cache[trialmodel.Registration] }

func NewRegistrationStore(kv KV, ttlSeconds int) *RegistrationStore {
	return &RegistrationStore{cache: NewCache[trialmodel.Registration](kv, ttlSeconds, "registration")}
}

func (s *RegistrationStore) GetOrFetch(ctx context.Context, trialId string, fetch func(context.Context) (trialmodel.Registration, error)) (trialmodel.Registration, error) {
	return s.cache.GetOrProduce(ctx, trialId, fetch)
}

// PublicationStore is the Publications store, keyed by PMID and shared
// across trials (spec.md §3 Lifecycle). Writes must be idempotent: the same
// PMID with identical enrichment produces an identical record.
type PublicationStore struct{ kv KV }

func NewPublicationStore(kv KV) *PublicationStore { return &PublicationStore{kv: kv} }

func (s *PublicationStore) Get(ctx context.Context, pmid string) (trialmodel.Publication, bool, error) {
	raw, ok, err := s.kv.Get(ctx, pmid)
	if err != nil || !ok {
		return trialmodel.Publication{}, ok, err
	}
	var pub trialmodel.Publication
	if err := json.Unmarshal(raw, &pub); err != nil {
		return trialmodel.Publication{}, false, err
	}
	return pub, true, nil
}

func (s *PublicationStore) Put(ctx context.Context, pub trialmodel.Publication, ttlSeconds int) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, pub.PMID, data, ttlSeconds, "publication")
}

// ClassificationStore is the Classifications store, keyed by
// "{trialId}__{pmid}". Writes are write-once per key under normal operation,
// but re-processing on resume is explicitly permitted and overwrites
// (spec.md §5 Shared-resource policy).
type ClassificationStore struct{ kv KV }

func NewClassificationStore(kv KV) *ClassificationStore { return &ClassificationStore{kv: kv} }

func (s *ClassificationStore) Get(ctx context.Context, trialId, pmid string) (trialmodel.Classification, bool, error) {
	raw, ok, err := s.kv.Get(ctx, trialmodel.ClassificationKey(trialId, pmid))
	if err != nil || !ok {
		return trialmodel.Classification{}, ok, err
	}
	var c trialmodel.Classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return trialmodel.Classification{}, false, err
	}
	return c, true, nil
}

func (s *ClassificationStore) Put(ctx context.Context, c trialmodel.Classification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, trialmodel.ClassificationKey(c.TrialId, c.PMID), data, 0, "classification")
}
