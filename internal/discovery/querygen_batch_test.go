package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/trialmodel"
)

func TestNewQueryV1BatchItemUsesTrialIdAsCustomID(t *testing.T) {
	item := NewQueryV1BatchItem(trialmodel.Registration{TrialId: "NCT00000001"}, "sys", "model-a", 256)
	require.Equal(t, "NCT00000001", item.CustomID)
	require.Equal(t, "model-a", item.Request.Model)
}

func TestParseQueryV1BatchResultParsesQuery(t *testing.T) {
	q, err := ParseQueryV1BatchResult(`{"query":"foo AND bar"}`)
	require.NoError(t, err)
	require.Equal(t, "foo AND bar", q)
}

func TestParseQueryV1BatchResultErrorsOnEmpty(t *testing.T) {
	_, err := ParseQueryV1BatchResult("")
	require.Error(t, err)
}

func TestParseQueryV2BatchResultParsesBundle(t *testing.T) {
	bundle, err := ParseQueryV2BatchResult(`{"keywords":["k1"],"investigators":[],"search_strings":[],"extra_queries":[]}`)
	require.NoError(t, err)
	require.Equal(t, []string{"k1"}, bundle.Keywords)
}
