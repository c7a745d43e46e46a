package batch

import (
	"context"

	"manifold/internal/datefilter"
	"manifold/internal/discovery"
	"manifold/internal/enrich"
	"manifold/internal/obslog"
	"manifold/internal/trialmodel"
)

// farFutureCutoff bounds MaxDateFilter away from ineligibility for non
// --validation-run calls, where §4.6's max-date cutoff does not apply.
const farFutureCutoff = "9999-12-31"

// buildEngine assembles the discovery.Engine for one run from the configured
// strategy IDs (spec.md §4.4), wiring each enabled strategy's dependencies.
// Batch-mode query bundles (decoded from Progress.QueryResults) are passed to
// the pubmed_gpt_v1/v2 strategies so they skip their own LLM call.
func (o *Orchestrator) buildEngine(p *trialmodel.Progress) *discovery.Engine {
	var strategies []discovery.Strategy
	enabled := o.Cfg.Batch.Strategies

	if strategyEnabled(enabled, "linked_at_registration") {
		strategies = append(strategies, discovery.LinkedAtRegistrationStrategy{})
	}
	if strategyEnabled(enabled, "pubmed_naive") {
		strategies = append(strategies, discovery.NewPubmedNaiveStrategy(o.Pubmed))
	}
	if strategyEnabled(enabled, "google_scholar") && o.WebSearch != nil {
		strategies = append(strategies, discovery.NewGoogleScholarStrategy(o.WebSearch, o.Pubmed))
	}
	if strategyEnabled(enabled, "pubmed_gpt_v1") {
		// QueryBundle stays nil (rather than an empty, non-nil map) unless
		// QUERY_GEN_PROCESS actually produced results: the strategy treats a
		// non-nil QueryBundle as authoritative and skips its own LLM call, so
		// a live run with no QUERY_GEN stage must fall through to that call.
		var v1Bundle map[string]string
		for trialId, qr := range p.QueryResults {
			if qr.V1Raw == "" {
				continue
			}
			if q, err := discovery.ParseQueryV1BatchResult(qr.V1Raw); err == nil {
				if v1Bundle == nil {
					v1Bundle = map[string]string{}
				}
				v1Bundle[trialId] = q
			}
		}
		strategies = append(strategies, &discovery.PubmedGPTV1Strategy{
			LLM: o.SyncLLM, Pubmed: o.Pubmed, Model: o.Cfg.Models.QueryV1,
			SystemPrompt: o.Cfg.SystemPrompts.QueryV1, N: 5, QueryBundle: v1Bundle,
		})
	}
	if strategyEnabled(enabled, "pubmed_gpt_v2") {
		var v2Bundle map[string]discovery.QueryBundleV2
		for trialId, qr := range p.QueryResults {
			if qr.V2Raw == "" {
				continue
			}
			if b, err := discovery.ParseQueryV2BatchResult(qr.V2Raw); err == nil {
				if v2Bundle == nil {
					v2Bundle = map[string]discovery.QueryBundleV2{}
				}
				v2Bundle[trialId] = b
			}
		}
		strategies = append(strategies, &discovery.PubmedGPTV2Strategy{
			LLM: o.SyncLLM, Pubmed: o.Pubmed, Model: o.Cfg.Models.QueryV2,
			SystemPrompt: o.Cfg.SystemPrompts.QueryV2, N: 5, QueryBundle: v2Bundle,
		})
	}

	return discovery.NewEngine(strategies...)
}

// runPubDiscovery runs the discovery engine, enrichment, and both date
// filters for every registration that doesn't already have a recorded
// PublicationSet (resume skip), per spec.md §4.8 PUB_DISCOVERY.
func (o *Orchestrator) runPubDiscovery(ctx context.Context, p *trialmodel.Progress, opts RunOptions) error {
	engine := o.buildEngine(p)

	for trialId, reg := range p.Registrations {
		if _, done := p.Publications[trialId]; done {
			continue
		}
		if row, ok := p.Rows[trialId]; ok && row.Status == trialmodel.RowError {
			continue
		}

		result := engine.Run(ctx, reg)

		pubs, err := o.enrichWithCache(ctx, enrich.Dedup(result.Candidates))
		set := trialmodel.PublicationSet{}
		if err != nil {
			set.Errors = append(set.Errors, trialmodel.PublicationSetError{Fn: "enrich", Message: err.Error()})
			obslog.Logger().Warn().Err(err).Str("trial_id", trialId).Msg("pub_discovery_enrich_failed")
		}
		for _, f := range result.Failures {
			set.Errors = append(set.Errors, trialmodel.PublicationSetError{Fn: f.Strategy, Message: f.Err.Error()})
		}

		maxCutoff := farFutureCutoff
		if opts.ValidationRun {
			maxCutoff = datefilter.CutoffFor(p.Datasets[trialId])
		}
		outcome := datefilter.ApplyBoth(pubs, maxCutoff, reg.StartDate)
		set.Candidates = outcome.Eligible
		set.Filtered = outcome.Filtered

		p.Publications[trialId] = set
	}

	advance(p, trialmodel.StageResultGenPreparation)
	return nil
}

// enrichWithCache enriches deduplicated candidates via the shared,
// content-addressed Publications store (spec.md §4.2): PMIDs already cached
// are served from PubStore without a PubMed round trip, and newly fetched
// records are written back for the next trial or run to reuse. Sources are
// always taken from the current dedup pass, never the cache, since source
// provenance is per-run discovery output, not an enrichment fact.
func (o *Orchestrator) enrichWithCache(ctx context.Context, dedup []trialmodel.Publication) ([]trialmodel.Publication, error) {
	out := make([]trialmodel.Publication, len(dedup))
	var toFetch []trialmodel.Publication
	var fetchIdx []int

	for i, pub := range dedup {
		if cached, found, err := o.PubStore.Get(ctx, pub.PMID); err == nil && found {
			cached.Sources = pub.Sources
			out[i] = cached
			continue
		}
		toFetch = append(toFetch, pub)
		fetchIdx = append(fetchIdx, i)
	}
	if len(toFetch) == 0 {
		return out, nil
	}

	enriched, err := enrich.Enrich(ctx, o.Pubmed, toFetch)
	if err != nil {
		return nil, err
	}

	ttl := o.Cfg.Cache.TTLFor("publication")
	for j, pub := range enriched {
		out[fetchIdx[j]] = pub
		if putErr := o.PubStore.Put(ctx, pub, ttl); putErr != nil {
			obslog.Logger().Warn().Err(putErr).Str("pmid", pub.PMID).Msg("pub_discovery_cache_put_failed")
		}
	}
	return out, nil
}
