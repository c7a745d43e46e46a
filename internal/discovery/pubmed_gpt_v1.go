package discovery

import (
	"context"
	"encoding/json"

	"manifold/internal/llmclient"
	"manifold/internal/pubmedclient"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// QueryV1Schema is exported so the batch query-generation stage (QUERY_GEN_*)
// can attach it to a pre-materialization batch request without duplicating
// it.
var QueryV1Schema = queryV1Schema

var queryV1Schema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"query": map[string]any{"type": "string"},
	},
	"required": []string{"query"},
}

type queryV1Response struct {
	Query string `json:"query"`
}

// PubmedGPTV1Strategy prompts the LLM to produce one PubMed query from the
// registration and runs it (N=5) (spec.md §4.4). In live mode it calls the
// sync LLM provider directly; in batch mode the query is pre-materialized by
// QUERY_GEN_* and supplied via QueryBundle instead (ResolveQuery is then
// skipped).
type PubmedGPTV1Strategy struct {
	LLM          llmclient.Provider
	Pubmed       *pubmedclient.Client
	Model        string
	SystemPrompt string
	N            int

	// QueryBundle, when non-nil, supplies a pre-materialized query (batch
	// mode) keyed by trialId, bypassing the LLM call entirely.
	QueryBundle map[string]string
}

func (PubmedGPTV1Strategy) ID() string { return "pubmed_gpt_v1" }

func (s *PubmedGPTV1Strategy) Discover(ctx context.Context, reg trialmodel.Registration) ([]Candidate, error) {
	n := s.N
	if n <= 0 {
		n = 5
	}

	query, err := s.resolveQuery(ctx, reg)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, trialerr.New(trialerr.KindPubmed, "pubmed_gpt_v1: empty generated query")
	}

	papers, err := s.Pubmed.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(papers))
	for _, p := range papers {
		out = append(out, Candidate{PMID: p.PMID, PublicationDate: p.PublicationDate})
	}
	return out, nil
}

func (s *PubmedGPTV1Strategy) resolveQuery(ctx context.Context, reg trialmodel.Registration) (string, error) {
	if s.QueryBundle != nil {
		return s.QueryBundle[reg.TrialId], nil
	}
	if s.LLM == nil {
		return "", trialerr.New(trialerr.KindConfig, "pubmed_gpt_v1: no LLM provider configured and no pre-materialized query bundle")
	}

	userPrompt := registrationPromptBody(reg)
	result, err := s.LLM.Classify(ctx, llmclient.ClassifyRequest{
		SystemPrompt: s.SystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       queryV1Schema,
		SchemaName:   "pubmed_query_v1",
		Model:        s.Model,
	})
	if err != nil {
		return "", err
	}

	var parsed queryV1Response
	if err := json.Unmarshal([]byte(result.RawJSON), &parsed); err != nil {
		return "", trialerr.Wrap(trialerr.KindParse, "pubmed_gpt_v1: parse LLM response", err)
	}
	return parsed.Query, nil
}

// registrationPromptBody renders the subset of a Registration relevant to
// query generation, with sensitive fields (hasResults, PMIDs) stripped per
// spec.md §4.8's QUERY_GEN_UPLOAD stage note.
func registrationPromptBody(reg trialmodel.Registration) string {
	stripped := struct {
		TrialId              string   `json:"trialId"`
		BriefTitle           string   `json:"briefTitle"`
		OfficialTitle        string   `json:"officialTitle"`
		BriefSummary         string   `json:"briefSummary"`
		DetailedDescription  string   `json:"detailedDescription"`
		InvestigatorFullName string   `json:"investigatorFullName"`
		StartDate            string   `json:"startDate"`
		Conditions           []string `json:"conditions"`
		Interventions        []string `json:"interventions"`
	}{
		TrialId:              reg.TrialId,
		BriefTitle:           reg.BriefTitle,
		OfficialTitle:        reg.OfficialTitle,
		BriefSummary:         reg.BriefSummary,
		DetailedDescription:  reg.DetailedDescription,
		InvestigatorFullName: reg.InvestigatorFullName,
		StartDate:            reg.StartDate,
		Conditions:           reg.Conditions,
		Interventions:        reg.Interventions,
	}
	b, _ := json.Marshal(stripped)
	return string(b)
}
