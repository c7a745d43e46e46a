package discovery

import (
	"context"
	"encoding/json"

	"manifold/internal/llmclient"
	"manifold/internal/pubmedclient"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// QueryV2Schema is exported for the same reason as QueryV1Schema: the batch
// query-generation stage attaches it to pre-materialization requests.
var QueryV2Schema = queryV2Schema

var queryV2Schema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"keywords":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 4},
		"investigators":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 3},
		"search_strings": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 6},
		"extra_queries":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 3},
	},
	"required": []string{"keywords", "investigators", "search_strings", "extra_queries"},
}

// QueryBundleV2 is the structured query-generation output of spec.md §4.4's
// pubmed_gpt_v2 row: keywords[≤4], investigators[≤3], search_strings[≤6],
// extra_queries[≤3].
type QueryBundleV2 struct {
	Keywords      []string `json:"keywords"`
	Investigators []string `json:"investigators"`
	SearchStrings []string `json:"search_strings"`
	ExtraQueries  []string `json:"extra_queries"`
}

// Queries flattens the bundle into the distinct PubMed query strings to run.
func (b QueryBundleV2) Queries() []string {
	var out []string
	seen := map[string]bool{}
	for _, group := range [][]string{b.Keywords, b.Investigators, b.SearchStrings, b.ExtraQueries} {
		for _, q := range group {
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	return out
}

// PubmedGPTV2Strategy prompts the LLM for a query bundle and runs every
// distinct query (N=5 each), unioning the results (spec.md §4.4).
type PubmedGPTV2Strategy struct {
	LLM          llmclient.Provider
	Pubmed       *pubmedclient.Client
	Model        string
	SystemPrompt string
	N            int

	// QueryBundle, when non-nil, supplies a pre-materialized bundle (batch
	// mode) keyed by trialId, bypassing the LLM call entirely.
	QueryBundle map[string]QueryBundleV2
}

func (PubmedGPTV2Strategy) ID() string { return "pubmed_gpt_v2" }

func (s *PubmedGPTV2Strategy) Discover(ctx context.Context, reg trialmodel.Registration) ([]Candidate, error) {
	n := s.N
	if n <= 0 {
		n = 5
	}

	bundle, err := s.resolveBundle(ctx, reg)
	if err != nil {
		return nil, err
	}
	queries := bundle.Queries()
	if len(queries) == 0 {
		return nil, trialerr.New(trialerr.KindPubmed, "pubmed_gpt_v2: empty generated query bundle")
	}

	seen := map[string]bool{}
	var out []Candidate
	for _, q := range queries {
		if q == "" {
			continue
		}
		papers, err := s.Pubmed.Search(ctx, q, n)
		if err != nil {
			// One bad sub-query does not fail the whole strategy; the
			// engine-level isolation in spec.md §4.4 applies at the
			// strategy boundary, but individual PubMed sub-queries are
			// best-effort within a strategy too.
			continue
		}
		for _, p := range papers {
			if !seen[p.PMID] {
				seen[p.PMID] = true
				out = append(out, Candidate{PMID: p.PMID, PublicationDate: p.PublicationDate})
			}
		}
	}
	return out, nil
}

func (s *PubmedGPTV2Strategy) resolveBundle(ctx context.Context, reg trialmodel.Registration) (QueryBundleV2, error) {
	if s.QueryBundle != nil {
		return s.QueryBundle[reg.TrialId], nil
	}
	if s.LLM == nil {
		return QueryBundleV2{}, trialerr.New(trialerr.KindConfig, "pubmed_gpt_v2: no LLM provider configured and no pre-materialized query bundle")
	}

	result, err := s.LLM.Classify(ctx, llmclient.ClassifyRequest{
		SystemPrompt: s.SystemPrompt,
		UserPrompt:   registrationPromptBody(reg),
		Schema:       queryV2Schema,
		SchemaName:   "pubmed_query_v2",
		Model:        s.Model,
	})
	if err != nil {
		return QueryBundleV2{}, err
	}

	var bundle QueryBundleV2
	if err := json.Unmarshal([]byte(result.RawJSON), &bundle); err != nil {
		return QueryBundleV2{}, trialerr.Wrap(trialerr.KindParse, "pubmed_gpt_v2: parse LLM response", err)
	}
	return bundle, nil
}
