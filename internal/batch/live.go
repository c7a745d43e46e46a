package batch

import (
	"context"
	"fmt"

	"manifold/internal/classifier"
	"manifold/internal/obslog"
	"manifold/internal/store"
	"manifold/internal/trialmodel"
)

// RunLive drives the single-trial/small-input synchronous path (spec.md §6's
// live driver). PREP and PUB_DISCOVERY run exactly as the batch FSM does —
// discovery strategies call the LLM inline since opts.QueryGenEnabled is
// always false here — but RESULT_GEN's upload/poll/process batch stages are
// replaced by one synchronous Classifier.ClassifySync call per candidate.
// retryErrors clears any row previously recorded as RowError (and its cached
// registration) so PREP treats it as unseen and refetches it, rather than
// leaving it permanently stuck from an earlier failed attempt.
func (o *Orchestrator) RunLive(ctx context.Context, inputPath string, rows []InputRow, opts RunOptions, retryErrors bool) (*trialmodel.Progress, error) {
	progress, found, err := o.Progress.Load()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		progress = trialmodel.NewProgress(inputPath, store.Clock())
	}
	o.outputDir = opts.OutputDir

	if retryErrors {
		for trialId, row := range progress.Rows {
			if row.Status == trialmodel.RowError {
				delete(progress.Rows, trialId)
				delete(progress.Registrations, trialId)
			}
		}
	}

	if err := o.runPrep(ctx, progress, rows); err != nil {
		return progress, err
	}
	if err := o.Progress.Save(progress); err != nil {
		return progress, fmt.Errorf("save progress after prep: %w", err)
	}

	if err := o.runPubDiscovery(ctx, progress, opts); err != nil {
		return progress, err
	}
	if err := o.Progress.Save(progress); err != nil {
		return progress, fmt.Errorf("save progress after pub_discovery: %w", err)
	}

	o.classifySync(ctx, progress)
	if err := o.Progress.Save(progress); err != nil {
		return progress, fmt.Errorf("save progress after classify: %w", err)
	}

	if err := o.runFinalize(ctx, progress, opts); err != nil {
		return progress, err
	}
	if err := o.runCostCalculation(ctx, progress); err != nil {
		return progress, err
	}
	if err := o.Progress.Save(progress); err != nil {
		return progress, fmt.Errorf("save progress after finalize: %w", err)
	}

	return progress, nil
}

// classifySync runs one Classifier.ClassifySync call per not-yet-classified
// candidate across every trial with a recorded PublicationSet, skipping rows
// that already failed in PREP/PUB_DISCOVERY. A per-pair failure is recorded
// in the Classification store (Verdict.Success=false) rather than aborting
// the trial, consistent with spec.md §7's per-unit failure isolation.
func (o *Orchestrator) classifySync(ctx context.Context, p *trialmodel.Progress) {
	for trialId, set := range p.Publications {
		reg, ok := p.Registrations[trialId]
		if !ok {
			continue
		}
		if row, ok := p.Rows[trialId]; ok && row.Status == trialmodel.RowError {
			continue
		}

		for _, pub := range set.Candidates {
			if _, found, _ := o.ClassStore.Get(ctx, trialId, pub.PMID); found {
				continue
			}
			verdict := o.Classifier.ClassifySync(ctx, o.SyncLLM, reg, pub)
			cls := classifier.ToClassification(trialId, pub.PMID, verdict)
			if err := o.ClassStore.Put(ctx, cls); err != nil {
				obslog.Logger().Warn().Err(err).Str("trial_id", trialId).Str("pmid", pub.PMID).
					Msg("live_classification_store_failed")
			}
		}

		row := p.Rows[trialId]
		row.Status = trialmodel.RowSuccess
		p.Rows[trialId] = row
	}
}
