package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/pubmedclient"
)

func TestFuzzyTitleMatchPicksHighestTokenOverlap(t *testing.T) {
	pool := []pubmedclient.PubmedRecord{
		{PMID: "1", Title: "Effects of aspirin on cardiovascular outcomes"},
		{PMID: "2", Title: "A randomized trial of metformin in diabetes"},
	}
	pmid := fuzzyTitleMatch("Randomized Trial Metformin Diabetes Outcomes", pool)
	require.Equal(t, "2", pmid)
}

func TestFuzzyTitleMatchReturnsEmptyWhenNoOverlap(t *testing.T) {
	pool := []pubmedclient.PubmedRecord{{PMID: "1", Title: "Unrelated topic entirely"}}
	require.Empty(t, fuzzyTitleMatch("completely different subject matter", pool))
}

func TestSignificantTokensDropsShortWords(t *testing.T) {
	tokens := significantTokens("A Big Trial of the New Drug")
	require.True(t, tokens["trial"])
	require.True(t, tokens["drug"])
	require.False(t, tokens["a"])
	require.False(t, tokens["of"])
}
