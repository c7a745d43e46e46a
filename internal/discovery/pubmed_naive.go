package discovery

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/pubmedclient"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// PubmedNaiveStrategy builds a structured PubMed query from the trial id,
// brief title, and investigator, constrained to publicationDate >=
// startDate, and returns the top N PMIDs (spec.md §4.4).
type PubmedNaiveStrategy struct {
	Client *pubmedclient.Client
	N      int
}

func NewPubmedNaiveStrategy(client *pubmedclient.Client) *PubmedNaiveStrategy {
	return &PubmedNaiveStrategy{Client: client, N: 5}
}

func (PubmedNaiveStrategy) ID() string { return "pubmed_naive" }

func (s *PubmedNaiveStrategy) Discover(ctx context.Context, reg trialmodel.Registration) ([]Candidate, error) {
	n := s.N
	if n <= 0 {
		n = 5
	}
	query := buildNaiveQuery(reg)
	if query == "" {
		return nil, trialerr.New(trialerr.KindPubmed, "pubmed_naive: empty query, registration has no searchable fields")
	}

	papers, err := s.Client.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(papers))
	for _, p := range papers {
		out = append(out, Candidate{PMID: p.PMID, PublicationDate: p.PublicationDate})
	}
	return out, nil
}

// buildNaiveQuery composes an E-utilities boolean query ORing the trial id,
// brief title, and investigator, constrained to publications on/after the
// registration's start date when known.
func buildNaiveQuery(reg trialmodel.Registration) string {
	var terms []string
	if reg.TrialId != "" {
		terms = append(terms, fmt.Sprintf("%s[All Fields]", reg.TrialId))
	}
	if reg.BriefTitle != "" {
		terms = append(terms, fmt.Sprintf("%s[Title]", reg.BriefTitle))
	}
	if reg.InvestigatorFullName != "" {
		terms = append(terms, fmt.Sprintf("%s[Author]", reg.InvestigatorFullName))
	}
	if len(terms) == 0 {
		return ""
	}
	query := "(" + strings.Join(terms, " OR ") + ")"
	if reg.StartDate != "" {
		year := reg.StartDate
		if len(year) >= 4 {
			year = year[:4]
		}
		query += fmt.Sprintf(` AND ("%s"[Date - Publication] : "3000"[Date - Publication])`, year)
	}
	return query
}
