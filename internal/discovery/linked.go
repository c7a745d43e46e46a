package discovery

import (
	"context"

	"manifold/internal/trialmodel"
)

// LinkedAtRegistrationStrategy takes registration.linkedPubmedIds first,
// falling back to PMIDs present in registration.references, per spec.md
// §4.4's table. It makes no external calls.
type LinkedAtRegistrationStrategy struct{}

func (LinkedAtRegistrationStrategy) ID() string { return "linked_at_registration" }

func (LinkedAtRegistrationStrategy) Discover(_ context.Context, reg trialmodel.Registration) ([]Candidate, error) {
	if len(reg.LinkedPubmedIds) > 0 {
		return pmidsToCandidates(reg.LinkedPubmedIds), nil
	}
	var pmids []string
	for _, ref := range reg.References {
		if ref.PMID != "" {
			pmids = append(pmids, ref.PMID)
		}
	}
	return pmidsToCandidates(pmids), nil
}

func pmidsToCandidates(pmids []string) []Candidate {
	seen := map[string]bool{}
	out := make([]Candidate, 0, len(pmids))
	for _, p := range pmids {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, Candidate{PMID: p})
	}
	return out
}
