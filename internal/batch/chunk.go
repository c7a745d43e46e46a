// Package batch implements the 12-stage resumable batch orchestrator of
// spec.md §4.8, the core of the system. Each stage is idempotent: re-entering
// a stage reads current Progress and skips any sub-task whose output already
// exists.
package batch

import (
	"encoding/json"
	"fmt"
	"math"

	"manifold/internal/config"
	"manifold/internal/llmclient"
	"manifold/internal/trialerr"
)

// SystemTokensPerRequest approximates the fixed per-request token overhead
// (message framing, schema name, role tokens) added on top of the
// prompt-length estimate (spec.md §4.8 RESULT_GEN_PREPARATION).
const SystemTokensPerRequest = 50

// EstimateTokens approximates a batch item's token cost as
// ceil((|systemPrompt| + |userPrompt|) / 4) + SystemTokensPerRequest.
func EstimateTokens(item llmclient.BatchItem) int {
	chars := len(item.Request.SystemPrompt) + len(item.Request.UserPrompt)
	return int(math.Ceil(float64(chars)/4)) + SystemTokensPerRequest
}

func itemSizeBytes(item llmclient.BatchItem) (int, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal batch item %s: %w", item.CustomID, err)
	}
	return len(b), nil
}

// ChunkPlan is one packed group of batch requests awaiting upload.
type ChunkPlan struct {
	Items           []llmclient.BatchItem
	EstimatedTokens int
	SizeBytes       int
}

// PackChunks packs items into chunks obeying both requestCount ≤
// maxRequestsPerBatch and serialized bytes ≤ floor(maxBytesPerBatch ×
// safetyBuffer) simultaneously (spec.md §4.8 RESULT_GEN_PREPARATION). A
// single request whose own serialized size exceeds the effective byte cap
// is a ConfigError (spec.md §8 boundary behavior), not a silently oversized
// chunk.
func PackChunks(items []llmclient.BatchItem, cfg config.BatchConfig) ([]ChunkPlan, error) {
	maxBytes := cfg.EffectiveMaxBytes()
	maxRequests := cfg.MaxRequestsPerBatch

	var chunks []ChunkPlan
	var current ChunkPlan

	for _, item := range items {
		sz, err := itemSizeBytes(item)
		if err != nil {
			return nil, err
		}
		if maxBytes > 0 && sz > maxBytes {
			return nil, trialerr.New(trialerr.KindConfig, fmt.Sprintf(
				"batch request %s is %d bytes, exceeding the effective cap of %d (maxBytesPerBatch/safetyBuffer misconfigured)",
				item.CustomID, sz, maxBytes))
		}

		overflowsCount := maxRequests > 0 && len(current.Items)+1 > maxRequests
		overflowsBytes := maxBytes > 0 && current.SizeBytes+sz > maxBytes
		if len(current.Items) > 0 && (overflowsCount || overflowsBytes) {
			chunks = append(chunks, current)
			current = ChunkPlan{}
		}

		current.Items = append(current.Items, item)
		current.EstimatedTokens += EstimateTokens(item)
		current.SizeBytes += sz
	}
	if len(current.Items) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
