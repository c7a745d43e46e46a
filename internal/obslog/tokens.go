package obslog

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter

	totalsMu    sync.Mutex
	modelTotals = map[string]struct{ Prompt, Completion int64 }{}
)

func ensureInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("internal/obslog")
		promptCounter, _ = m.Int64Counter("trialpub.llm.prompt_tokens")
		completionCounter, _ = m.Int64Counter("trialpub.llm.completion_tokens")
	})
}

// RecordTokenUsage records prompt/completion token counts for a model,
// mirroring internal/llm/observability.go's RecordTokenMetrics: it adds them
// to the OpenTelemetry counters and to the per-model totals TokenTotals
// returns. The batch orchestrator's daily budget is counted from chunk
// estimates, not from these numbers.
func RecordTokenUsage(model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureInstruments()
	ctx := context.Background()
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), otelmetric.WithAttributes())
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), otelmetric.WithAttributes())
	}
	totalsMu.Lock()
	cur := modelTotals[model]
	cur.Prompt += int64(promptTokens)
	cur.Completion += int64(completionTokens)
	modelTotals[model] = cur
	totalsMu.Unlock()
}

// TokenTotals returns cumulative prompt/completion tokens recorded per
// model since process start.
func TokenTotals() map[string]struct{ Prompt, Completion int64 } {
	totalsMu.Lock()
	defer totalsMu.Unlock()
	out := make(map[string]struct{ Prompt, Completion int64 }, len(modelTotals))
	for k, v := range modelTotals {
		out[k] = v
	}
	return out
}
