package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/llmclient"
)

func item(customID string, userPromptLen int) llmclient.BatchItem {
	return llmclient.BatchItem{
		CustomID: customID,
		Request: llmclient.ClassifyRequest{
			SystemPrompt: "sys",
			UserPrompt:   strings.Repeat("x", userPromptLen),
			Model:        "m",
		},
	}
}

func TestPackChunksRespectsRequestCountLimit(t *testing.T) {
	items := []llmclient.BatchItem{item("a", 10), item("b", 10), item("c", 10)}
	cfg := config.BatchConfig{MaxRequestsPerBatch: 2, MaxBytesPerBatch: 1 << 20, SafetyBuffer: 1}
	chunks, err := PackChunks(items, cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0].Items, 2)
	require.Len(t, chunks[1].Items, 1)
}

func TestPackChunksRespectsByteLimit(t *testing.T) {
	items := []llmclient.BatchItem{item("a", 200), item("b", 200), item("c", 200)}
	small, _ := itemSizeBytes(item("a", 200))
	cfg := config.BatchConfig{MaxRequestsPerBatch: 100, MaxBytesPerBatch: small*2 + 1, SafetyBuffer: 1}
	chunks, err := PackChunks(items, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		require.LessOrEqual(t, c.SizeBytes, cfg.EffectiveMaxBytes())
	}
}

func TestPackChunksOversizedSingleRequestIsConfigError(t *testing.T) {
	items := []llmclient.BatchItem{item("huge", 10_000)}
	cfg := config.BatchConfig{MaxRequestsPerBatch: 100, MaxBytesPerBatch: 100, SafetyBuffer: 1}
	_, err := PackChunks(items, cfg)
	require.Error(t, err)
}

func TestPackChunksEmptyInputProducesNoChunks(t *testing.T) {
	cfg := config.BatchConfig{MaxRequestsPerBatch: 10, MaxBytesPerBatch: 1000, SafetyBuffer: 1}
	chunks, err := PackChunks(nil, cfg)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestEstimateTokensIncludesSystemOverhead(t *testing.T) {
	it := item("a", 0)
	it.Request.SystemPrompt = ""
	tokens := EstimateTokens(it)
	require.Equal(t, SystemTokensPerRequest, tokens)
}
