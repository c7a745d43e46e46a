package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/trialmodel"
)

func TestLinkedAtRegistrationPrefersLinkedPubmedIds(t *testing.T) {
	reg := trialmodel.Registration{
		LinkedPubmedIds: []string{"555", "666"},
		References:      []trialmodel.Reference{{PMID: "999"}},
	}
	cands, err := LinkedAtRegistrationStrategy{}.Discover(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.ElementsMatch(t, []string{"555", "666"}, pmidList(cands))
}

func TestLinkedAtRegistrationFallsBackToReferences(t *testing.T) {
	reg := trialmodel.Registration{
		References: []trialmodel.Reference{{PMID: "111"}, {PMID: ""}},
	}
	cands, err := LinkedAtRegistrationStrategy{}.Discover(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, []string{"111"}, pmidList(cands))
}

func TestLinkedAtRegistrationEmptyWhenNeitherPresent(t *testing.T) {
	cands, err := LinkedAtRegistrationStrategy{}.Discover(context.Background(), trialmodel.Registration{})
	require.NoError(t, err)
	require.Empty(t, cands)
}

func pmidList(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.PMID
	}
	return out
}
