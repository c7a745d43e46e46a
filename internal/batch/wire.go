package batch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"manifold/internal/classifier"
	"manifold/internal/config"
	"manifold/internal/llmclient"
	"manifold/internal/pubmedclient"
	"manifold/internal/registry"
	"manifold/internal/store"
	"manifold/internal/websearchclient"
)

// New constructs an Orchestrator wiring every collaborator from cfg
// (spec.md §6's configuration surface). KV stores fall back to an
// in-memory backend when cfg.DatabaseURL is empty, following
// internal/persistence/databases/factory.go's "auto"-backend pattern, so the
// drivers run against a throwaway cache without a database configured.
// localRegistrationsDir wires the ctgov adapter's --local-registrations
// directory (spec.md §6 Inputs).
func New(ctx context.Context, cfg *config.Config, progressPath, localRegistrationsDir string) (*Orchestrator, error) {
	regKV, pubKV, classKV, err := buildKVBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sched := pubmedclient.NewScheduler(4, 8)
	pubmed := pubmedclient.New(pubmedclient.Config{
		BaseURL: cfg.PubMed.BaseURL,
		APIKey:  cfg.PubMed.APIKey,
		Email:   cfg.PubMed.Email,
	}, sched)

	var webSearch *websearchclient.Client
	if cfg.WebSearch.BaseURL != "" {
		webSearch = websearchclient.New(websearchclient.Config{BaseURL: cfg.WebSearch.BaseURL})
	}

	syncLLM, batchLLM := buildLLMProviders(cfg)

	resultsClassifier := classifier.New(cfg.SystemPrompts.Results, cfg.Models.Results)
	resultsClassifier.MaxTokens = int64(cfg.Batch.MaxTokensResults)

	return &Orchestrator{
		Cfg: cfg,
		Registry: &registry.Dispatcher{
			CTGov: registry.NewCTGovAdapter("", localRegistrationsDir),
			EUCTR: registry.NewEUCTRAdapter("", ""),
			DRKS:  registry.NewDRKSAdapter(""),
		},
		Pubmed:     pubmed,
		RegStore:   store.NewRegistrationStore(regKV, cfg.Cache.TTLFor("registration")),
		PubStore:   store.NewPublicationStore(pubKV),
		ClassStore: store.NewClassificationStore(classKV),
		Progress:   store.NewProgressStore(progressPath),
		SyncLLM:    syncLLM,
		BatchLLM:   batchLLM,
		Classifier: resultsClassifier,
		WebSearch:  webSearch,
	}, nil
}

// buildKVBackends wires the three content-addressed stores, optionally
// fronted by Redis (cfg.RedisURL) as a read-through cache layer ahead of
// Postgres. Redis is purely an accelerator here: a Get miss or a disabled
// client always falls back to the backing KV, so losing Redis never loses
// data.
func buildKVBackends(ctx context.Context, cfg *config.Config) (store.KV, store.KV, store.KV, error) {
	redisClient, err := newRedisClientFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return wrapWithRedis(store.NewMemoryKV(), redisClient, "registrations"),
			wrapWithRedis(store.NewMemoryKV(), redisClient, "publications"),
			wrapWithRedis(store.NewMemoryKV(), redisClient, "classifications"),
			nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	regKV, err := store.NewPostgresKV(ctx, pool, "registrations")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init registrations table: %w", err)
	}
	pubKV, err := store.NewPostgresKV(ctx, pool, "publications")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init publications table: %w", err)
	}
	classKV, err := store.NewPostgresKV(ctx, pool, "classifications")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init classifications table: %w", err)
	}
	return wrapWithRedis(regKV, redisClient, "registrations"),
		wrapWithRedis(pubKV, redisClient, "publications"),
		wrapWithRedis(classKV, redisClient, "classifications"),
		nil
}

func newRedisClientFromURL(ctx context.Context, rawURL string) (redis.UniversalClient, error) {
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func wrapWithRedis(backing store.KV, client redis.UniversalClient, namespace string) store.KV {
	if client == nil {
		return backing
	}
	return store.NewReadThroughKV(backing, client, namespace)
}

// buildLLMProviders picks the synchronous provider named by LLM_PROVIDER.
// The batch provider is always OpenAI's Batches API regardless of that
// choice: Anthropic's SDK has no equivalent asynchronous batch surface in
// the pack, so QUERY_GEN/RESULT_GEN always submit through OpenAI even when
// classification itself runs synchronously against Anthropic.
func buildLLMProviders(cfg *config.Config) (llmclient.Provider, llmclient.BatchProvider) {
	batchLLM := llmclient.NewOpenAIBatchProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL)

	if cfg.LLM.Provider == "anthropic" {
		return llmclient.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicBaseURL, cfg.Models.Results), batchLLM
	}
	return llmclient.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.Models.Results), batchLLM
}
