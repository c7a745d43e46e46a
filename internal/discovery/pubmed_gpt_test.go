package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/llmclient"
	"manifold/internal/pubmedclient"
	"manifold/internal/trialmodel"
)

type stubLLMProvider struct {
	rawJSON string
	err     error
}

func (s stubLLMProvider) Classify(_ context.Context, _ llmclient.ClassifyRequest) (llmclient.ClassifyResult, error) {
	if s.err != nil {
		return llmclient.ClassifyResult{}, s.err
	}
	return llmclient.ClassifyResult{RawJSON: s.rawJSON, PromptTokens: 10, CompletionTokens: 3}, nil
}

func TestPubmedGPTV1StrategyUsesPreMaterializedBundleWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(esearchFixture))
	}))
	defer srv.Close()

	client := pubmedclient.New(pubmedclient.Config{BaseURL: srv.URL}, pubmedclient.NewScheduler(4, 8))
	strategy := &PubmedGPTV1Strategy{
		Pubmed:      client,
		QueryBundle: map[string]string{"NCT00000001": "prepared query"},
	}

	cands, err := strategy.Discover(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "424242", cands[0].PMID)
}

func TestPubmedGPTV1StrategyCallsLLMWhenNoBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(esearchFixture))
	}))
	defer srv.Close()

	client := pubmedclient.New(pubmedclient.Config{BaseURL: srv.URL}, pubmedclient.NewScheduler(4, 8))
	strategy := &PubmedGPTV1Strategy{
		Pubmed: client,
		LLM:    stubLLMProvider{rawJSON: `{"query":"generated query"}`},
	}

	cands, err := strategy.Discover(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
}

func TestPubmedGPTV1StrategyErrorsWithoutLLMOrBundle(t *testing.T) {
	strategy := &PubmedGPTV1Strategy{Pubmed: pubmedclient.New(pubmedclient.Config{}, pubmedclient.NewScheduler(4, 8))}
	_, err := strategy.Discover(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.Error(t, err)
}

func TestQueryBundleV2QueriesFlattensAllFields(t *testing.T) {
	b := QueryBundleV2{
		Keywords:      []string{"k1"},
		Investigators: []string{"i1"},
		SearchStrings: []string{"s1", "s2"},
		ExtraQueries:  []string{"e1"},
	}
	require.ElementsMatch(t, []string{"k1", "i1", "s1", "s2", "e1"}, b.Queries())
}

func TestPubmedGPTV2StrategyUnionsResultsAcrossQueries(t *testing.T) {
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Write([]byte(esearchFixture))
	}))
	defer srv.Close()

	client := pubmedclient.New(pubmedclient.Config{BaseURL: srv.URL}, pubmedclient.NewScheduler(4, 8))
	strategy := &PubmedGPTV2Strategy{
		Pubmed: client,
		QueryBundle: map[string]QueryBundleV2{
			"NCT00000001": {Keywords: []string{"k1"}, SearchStrings: []string{"s1"}},
		},
	}

	cands, err := strategy.Discover(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.NoError(t, err)
	require.Len(t, cands, 1, "duplicate PMIDs across sub-queries should be deduped")
	require.Equal(t, 2, callCount)
}

func TestPubmedGPTV2StrategyErrorsOnEmptyBundle(t *testing.T) {
	strategy := &PubmedGPTV2Strategy{
		Pubmed:      pubmedclient.New(pubmedclient.Config{}, pubmedclient.NewScheduler(4, 8)),
		QueryBundle: map[string]QueryBundleV2{},
	}
	_, err := strategy.Discover(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.Error(t, err)
}
