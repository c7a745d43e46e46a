package batch

import (
	"context"
	"fmt"
	"sort"

	"manifold/internal/obslog"
	"manifold/internal/trialmodel"
)

// TrialSummary is one row of the run's output table (spec.md §6), columns in
// the mandated order: nct_id, trial_id, tool_results, has_error,
// tool_prompted_pmids, tool_result_pmids, tool_ident_steps,
// earliest_result_publication, earliest_result_publication_date,
// failed_publication_discoveries, failed_result_discoveries, reasons.
// ToolPromptedPMIDs, ToolResultPMIDs, and ToolIdentSteps are lists (spec.md
// §4.8, §6): the first two are PMIDs, the last is discovery-strategy
// identifiers, each rendered comma-separated in the CSV.
type TrialSummary struct {
	NCTId                         string
	TrialId                       string
	ToolResults                   bool
	HasError                      bool
	ToolPromptedPMIDs             []string
	ToolResultPMIDs               []string
	ToolIdentSteps                []string
	EarliestResultPublication     string
	EarliestResultPublicationDate string
	FailedPublicationDiscoveries  int
	FailedResultDiscoveries       int
	Reasons                       []string
}

// publicationVerdict pairs a publication with its classification for the
// purposes of picking the earliest positive result.
type publicationVerdict struct {
	pub trialmodel.Publication
	cls trialmodel.Classification
}

// runFinalize computes one TrialSummary per trial, writes its sidecar, then
// writes the aggregate summary table (spec.md §4.8 FINALIZE, §6 Output).
func (o *Orchestrator) runFinalize(ctx context.Context, p *trialmodel.Progress, opts RunOptions) error {
	trialIds := make([]string, 0, len(p.Registrations))
	for trialId := range p.Registrations {
		trialIds = append(trialIds, trialId)
	}
	sort.Strings(trialIds)

	summaries := make([]TrialSummary, 0, len(trialIds))
	for _, trialId := range trialIds {
		reg := p.Registrations[trialId]
		set := p.Publications[trialId]
		row := p.Rows[trialId]

		summary := TrialSummary{TrialId: trialId}
		if reg.RegistryType == trialmodel.RegistryCTGov {
			summary.NCTId = trialId
		}
		summary.HasError = row.Status == trialmodel.RowError
		promptedPMIDs := make([]string, 0, len(set.Candidates))
		for _, pub := range set.Candidates {
			promptedPMIDs = append(promptedPMIDs, pub.PMID)
		}
		summary.ToolPromptedPMIDs = promptedPMIDs
		summary.FailedPublicationDiscoveries = len(set.Errors)

		var positives []publicationVerdict
		failedResults := 0
		var reasons []string
		for _, pub := range set.Candidates {
			cls, found, err := o.ClassStore.Get(ctx, trialId, pub.PMID)
			if err != nil || !found {
				continue
			}
			if !cls.Success {
				failedResults++
				continue
			}
			if cls.HasResults {
				positives = append(positives, publicationVerdict{pub: pub, cls: cls})
				if cls.Reason != "" {
					reasons = append(reasons, fmt.Sprintf("PMID%s: %s", pub.PMID, cls.Reason))
				}
			}
		}
		summary.FailedResultDiscoveries = failedResults
		resultPMIDs := make([]string, 0, len(positives))
		for _, pv := range positives {
			resultPMIDs = append(resultPMIDs, pv.pub.PMID)
		}
		summary.ToolResultPMIDs = resultPMIDs
		summary.ToolResults = len(positives) > 0
		summary.Reasons = reasons
		summary.ToolIdentSteps = contributingStrategies(positives)

		if earliest, ok := earliestByDate(positives); ok {
			summary.EarliestResultPublication = earliest.pub.PMID
			summary.EarliestResultPublicationDate = earliest.pub.PublicationDate
		}

		if err := writeSidecar(opts.OutputDir, trialId, reg, set, summary); err != nil {
			obslog.Logger().Error().Err(err).Str("trial_id", trialId).Msg("finalize_sidecar_write_failed")
		}

		summaries = append(summaries, summary)
	}

	if err := writeSummaryCSV(opts.OutputDir, summaries); err != nil {
		return err
	}

	advance(p, trialmodel.StageCostCalculation)
	return nil
}

// contributingStrategies returns the sorted union of source tags across
// every positively-classified publication (spec.md §4.8: "union of sources
// over positive publications"; §8 requires this column to contain every
// strategy behind a positive result, not every strategy that merely
// surfaced a candidate).
func contributingStrategies(positives []publicationVerdict) []string {
	strategies := map[string]bool{}
	for _, pv := range positives {
		for _, src := range pv.pub.SourceSet() {
			strategies[src] = true
		}
	}
	out := make([]string, 0, len(strategies))
	for s := range strategies {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// earliestByDate returns the positively-classified publication with the
// earliest (lexicographically smallest) publicationDate. Publications with
// no date sort last, never chosen over a dated one.
func earliestByDate(positives []publicationVerdict) (publicationVerdict, bool) {
	var best publicationVerdict
	found := false
	for _, pv := range positives {
		if pv.pub.PublicationDate == "" {
			continue
		}
		if !found || trialmodel.CompareISODates(pv.pub.PublicationDate, best.pub.PublicationDate) < 0 {
			best = pv
			found = true
		}
	}
	if !found && len(positives) > 0 {
		return positives[0], true
	}
	return best, found
}
