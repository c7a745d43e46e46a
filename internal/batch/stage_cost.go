package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"manifold/internal/trialmodel"
)

// CostReport totals the token spend recorded across every classification in
// the run, split by trial, for the COST_CALCULATION stage (spec.md §4.8).
// There is no per-model pricing table in configuration, so the report
// carries raw token counts rather than a dollar estimate.
type CostReport struct {
	TotalPromptTokens     int                    `json:"totalPromptTokens"`
	TotalCompletionTokens int                    `json:"totalCompletionTokens"`
	TotalTokens           int                    `json:"totalTokens"`
	ByTrial               map[string]trialmodel.Usage `json:"byTrial"`
}

// runCostCalculation sums each trial's classification token usage and writes
// a cost report, then advances to COMPLETE.
func (o *Orchestrator) runCostCalculation(ctx context.Context, p *trialmodel.Progress) error {
	report := CostReport{ByTrial: map[string]trialmodel.Usage{}}

	for trialId, set := range p.Publications {
		var trialUsage trialmodel.Usage
		for _, pub := range set.Candidates {
			cls, found, err := o.ClassStore.Get(ctx, trialId, pub.PMID)
			if err != nil || !found {
				continue
			}
			trialUsage.PromptTokens += cls.Tokens.PromptTokens
			trialUsage.CompletionTokens += cls.Tokens.CompletionTokens
			trialUsage.TotalTokens += cls.Tokens.TotalTokens
		}
		report.ByTrial[trialId] = trialUsage
		report.TotalPromptTokens += trialUsage.PromptTokens
		report.TotalCompletionTokens += trialUsage.CompletionTokens
		report.TotalTokens += trialUsage.TotalTokens
	}

	if err := writeCostReport(o.outputDir, report); err != nil {
		return err
	}

	advance(p, trialmodel.StageComplete)
	return nil
}

func writeCostReport(outputDir string, report CostReport) error {
	if outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cost report: %w", err)
	}
	path := filepath.Join(outputDir, "cost.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cost report tmp file: %w", err)
	}
	return os.Rename(tmp, path)
}
