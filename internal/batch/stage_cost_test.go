package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/store"
	"manifold/internal/trialmodel"
)

func TestRunCostCalculationSumsTokensByTrial(t *testing.T) {
	o := &Orchestrator{ClassStore: store.NewClassificationStore(store.NewMemoryKV())}
	o.outputDir = t.TempDir()
	ctx := context.Background()

	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.Publications["NCT1"] = trialmodel.PublicationSet{Candidates: []trialmodel.Publication{{PMID: "1"}, {PMID: "2"}}}
	p.Publications["NCT2"] = trialmodel.PublicationSet{Candidates: []trialmodel.Publication{{PMID: "3"}}}

	put := func(trialId, pmid string, prompt, completion int) {
		require.NoError(t, o.ClassStore.Put(ctx, trialmodel.Classification{
			TrialId: trialId, PMID: pmid, Success: true,
			Tokens: trialmodel.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
		}))
	}
	put("NCT1", "1", 100, 10)
	put("NCT1", "2", 50, 5)
	put("NCT2", "3", 20, 2)

	require.NoError(t, o.runCostCalculation(ctx, p))
	require.Equal(t, trialmodel.StageComplete, p.Stage)

	raw, err := os.ReadFile(filepath.Join(o.outputDir, "cost.json"))
	require.NoError(t, err)
	var report CostReport
	require.NoError(t, json.Unmarshal(raw, &report))

	require.Equal(t, 170, report.TotalPromptTokens)
	require.Equal(t, 17, report.TotalCompletionTokens)
	require.Equal(t, 187, report.TotalTokens)
	require.Equal(t, 150, report.ByTrial["NCT1"].PromptTokens)
	require.Equal(t, 20, report.ByTrial["NCT2"].PromptTokens)
}
