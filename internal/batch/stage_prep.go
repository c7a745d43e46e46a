package batch

import (
	"context"

	"manifold/internal/obslog"
	"manifold/internal/trialmodel"
)

// runPrep implements spec.md §4.8's PREP stage: normalize and deduplicate
// input rows, fetch each registration (read-through the Registrations
// store), and seed Progress.Rows/SkippedCounts. A registration fetch failure
// is isolated to that row — it is recorded as RowError and does not abort the
// run, consistent with spec.md §7's per-row failure isolation.
func (o *Orchestrator) runPrep(ctx context.Context, p *trialmodel.Progress, rows []InputRow) error {
	seen := map[string]bool{}

	for _, row := range rows {
		trialId := trialmodel.NormalizeTrialId(row.TrialId)
		if trialId == "" {
			p.SkippedCounts.NoTrialId++
			continue
		}
		if seen[trialId] {
			continue
		}
		seen[trialId] = true
		if p.Datasets == nil {
			p.Datasets = map[string]string{}
		}
		p.Datasets[trialId] = row.Dataset

		if _, ok := p.Rows[trialId]; ok {
			// Already processed by a prior run of PREP (resume case).
			continue
		}

		reg, err := o.RegStore.GetOrFetch(ctx, trialId, func(ctx context.Context) (trialmodel.Registration, error) {
			return o.Registry.Fetch(ctx, trialId)
		})
		if err != nil {
			p.SkippedCounts.NoRegistration++
			p.Rows[trialId] = trialmodel.RowState{Status: trialmodel.RowError, LastErr: err.Error()}
			obslog.Logger().Warn().Err(err).Str("trial_id", trialId).Msg("prep_registration_fetch_failed")
			continue
		}

		if verr := reg.Validate(); verr != nil {
			p.Rows[trialId] = trialmodel.RowState{Status: trialmodel.RowError, LastErr: verr.Error()}
			obslog.Logger().Warn().Err(verr).Str("trial_id", trialId).Msg("prep_registration_invalid")
			continue
		}

		p.Registrations[trialId] = reg
		p.Rows[trialId] = trialmodel.RowState{Status: trialmodel.RowProcessing}
	}

	advance(p, trialmodel.StageQueryGenUpload)
	return nil
}
