package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const euctrTextFixture = `
A.3 A Full Study Title: Effects of Drug X on Condition Y
E.1.1 Main objective: brief summary text
E.1.1.1 Medical condition(s): Condition Y
E.2.1 Secondary objective: detailed description text
E.7.1 Trial Phase: Phase III
E.8.1 Study design: Randomised
F.1.1 Gender: Men and Women
N.1.1 Date of competent authority decision: 2018-05-01
P.END.1 Trial Status: Completed
P.END.2 Date of global end of trial: 2020-03-01
D.3.1 Investigational medicinal product: Drug X
`

const euctrResultsHTMLFixture = `<html><body>
<p>Clinical trial results available.</p>
<a href="https://www.ncbi.nlm.nih.gov/pubmed/87654321">PubMed link</a>
<a href="https://www.ncbi.nlm.nih.gov/pubmed/87654321">duplicate</a>
</body></html>`

func newEUCTRTestAdapter(t *testing.T, textBody, htmlBody string, htmlStatus int) *EUCTRAdapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/text/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(textBody))
	})
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		if htmlStatus != 0 && htmlStatus != http.StatusOK {
			w.WriteHeader(htmlStatus)
			return
		}
		w.Write([]byte(htmlBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewEUCTRAdapter(srv.URL+"/text/%s", srv.URL+"/html/%s")
}

func TestEUCTRAdapterFetchParsesFieldsAndPmids(t *testing.T) {
	adapter := newEUCTRTestAdapter(t, euctrTextFixture, euctrResultsHTMLFixture, http.StatusOK)
	reg, err := adapter.Fetch(context.Background(), "2018-001234-56")
	require.NoError(t, err)

	require.Contains(t, reg.BriefTitle, "Effects of Drug X")
	require.Equal(t, "brief summary text", reg.BriefSummary)
	require.Equal(t, "detailed description text", reg.DetailedDescription)
	require.Equal(t, "Completed", reg.OverallStatus)
	require.Equal(t, []string{"Condition Y"}, reg.Conditions)
	require.Equal(t, []string{"Drug X"}, reg.Interventions)
	require.Equal(t, []string{"87654321"}, reg.LinkedPubmedIds)
	require.NotNil(t, reg.HasResults)
	require.True(t, *reg.HasResults)
}

func TestEUCTRAdapterFetchTextFailureIsHardError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/text/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(euctrResultsHTMLFixture))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewEUCTRAdapter(srv.URL+"/text/%s", srv.URL+"/html/%s")
	_, err := adapter.Fetch(context.Background(), "2018-001234-56")
	require.Error(t, err)
}

func TestEUCTRAdapterFetchHTMLFailureIsBestEffort(t *testing.T) {
	adapter := newEUCTRTestAdapter(t, euctrTextFixture, "", http.StatusInternalServerError)
	reg, err := adapter.Fetch(context.Background(), "2018-001234-56")
	require.NoError(t, err)
	require.Contains(t, reg.BriefTitle, "Effects of Drug X")
	require.Nil(t, reg.HasResults)
	require.Empty(t, reg.LinkedPubmedIds)
}

func TestParseEUCTRFieldsSkipsBlankValues(t *testing.T) {
	fields := parseEUCTRFields("A.3 Title: \nE.1.1 Main objective: summary\n")
	require.Equal(t, "summary", fields["E.1.1"])
	_, hasBlank := fields["A.3"]
	require.False(t, hasBlank)
}

func TestExtractPmidsFromText(t *testing.T) {
	text := fmt.Sprintf("see %s and %s", "ncbi.nlm.nih.gov/pubmed/111", "ncbi.nlm.nih.gov/pubmed/222")
	pmids := extractPmidsFromText(text)
	require.Equal(t, []string{"111", "222"}, pmids)
}

func TestHasEUCTRResultIndicators(t *testing.T) {
	require.True(t, hasEUCTRResultIndicators("Clinical Trial Results posted"))
	require.False(t, hasEUCTRResultIndicators(strings.ToLower("no such section here")))
}
