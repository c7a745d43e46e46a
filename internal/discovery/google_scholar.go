package discovery

import (
	"context"
	"strings"

	"manifold/internal/pubmedclient"
	"manifold/internal/trialmodel"
	"manifold/internal/websearchclient"
)

// GoogleScholarStrategy queries the web-search backend with the trial id; for
// each returned title it resolves a PMID via citation-match, falling back to
// a fuzzy match against the top 100 PubMed title-search results (spec.md
// §4.4).
type GoogleScholarStrategy struct {
	Search *websearchclient.Client
	Pubmed *pubmedclient.Client
	MaxHits int
}

func NewGoogleScholarStrategy(search *websearchclient.Client, pubmed *pubmedclient.Client) *GoogleScholarStrategy {
	return &GoogleScholarStrategy{Search: search, Pubmed: pubmed, MaxHits: 10}
}

func (GoogleScholarStrategy) ID() string { return "google_scholar" }

func (s *GoogleScholarStrategy) Discover(ctx context.Context, reg trialmodel.Registration) ([]Candidate, error) {
	maxHits := s.MaxHits
	if maxHits <= 0 {
		maxHits = 10
	}

	hits, err := s.Search.Search(ctx, reg.TrialId, maxHits)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	var out []Candidate

	for _, hit := range hits {
		if strings.TrimSpace(hit.Title) == "" {
			continue
		}
		pmids, err := s.Pubmed.CitationMatch(ctx, hit.Title)
		if err == nil && len(pmids) > 0 {
			for _, pmid := range pmids {
				if !seen[pmid] {
					seen[pmid] = true
					out = append(out, Candidate{PMID: pmid})
				}
			}
			continue
		}

		if stubs, serr := s.Pubmed.Search(ctx, hit.Title, 100); serr == nil && len(stubs) > 0 {
			pmids := make([]string, 0, len(stubs))
			for _, stub := range stubs {
				pmids = append(pmids, stub.PMID)
			}
			pool, _ := s.Pubmed.FetchRefs(ctx, pmids)
			if pmid := fuzzyTitleMatch(hit.Title, pool); pmid != "" && !seen[pmid] {
				seen[pmid] = true
				out = append(out, Candidate{PMID: pmid})
			}
		}
	}
	return out, nil
}

// fuzzyTitleMatch picks the pool entry whose title shares the most
// whitespace-delimited tokens with needle, requiring at least one shared
// token longer than 3 characters to avoid matching on stopwords alone.
func fuzzyTitleMatch(needle string, pool []pubmedclient.PubmedRecord) string {
	needleTokens := significantTokens(needle)
	if len(needleTokens) == 0 {
		return ""
	}

	bestPMID := ""
	bestScore := 0
	for _, p := range pool {
		score := 0
		poolTokens := significantTokens(p.Title)
		for t := range needleTokens {
			if poolTokens[t] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestPMID = p.PMID
		}
	}
	if bestScore == 0 {
		return ""
	}
	return bestPMID
}

func significantTokens(title string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(title)) {
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if len(tok) > 3 {
			out[tok] = true
		}
	}
	return out
}
