package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const ctgovFixture = `{
  "protocolSection": {
    "identificationModule": {"nctId": "NCT01234567", "briefTitle": "A Trial", "officialTitle": "A Full Trial Title", "acronym": "ATRIAL"},
    "statusModule": {"overallStatus": "COMPLETED", "startDateStruct": {"date": "2019-01"}, "completionDateStruct": {"date": "2020-06"}},
    "descriptionModule": {"briefSummary": "brief", "detailedDescription": "detailed"},
    "designModule": {"studyType": "INTERVENTIONAL", "phases": ["PHASE2", "PHASE3"]},
    "eligibilityModule": {"sex": "ALL"},
    "conditionsModule": {"conditions": ["Asthma"]},
    "armsInterventionsModule": {"interventions": [{"name": "Drug A"}]},
    "referencesModule": {"references": [{"pmid": "12345678", "citation": "Some Citation"}]}
  },
  "hasResults": true
}`

func TestCTGovAdapterFetchFromNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/NCT01234567", r.URL.Path)
		w.Write([]byte(ctgovFixture))
	}))
	defer srv.Close()

	adapter := NewCTGovAdapter(srv.URL, "")
	reg, err := adapter.Fetch(context.Background(), "NCT01234567")
	require.NoError(t, err)
	require.Equal(t, "A Trial", reg.BriefTitle)
	require.Equal(t, "ATRIAL", reg.Acronym)
	require.Equal(t, "PHASE2/PHASE3", reg.Phase)
	require.Equal(t, []string{"Asthma"}, reg.Conditions)
	require.NotNil(t, reg.HasResults)
	require.True(t, *reg.HasResults)
	require.Len(t, reg.References, 1)
	require.Equal(t, "12345678", reg.References[0].PMID)
}

func TestCTGovAdapterFetchFromLocalDirFirst(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "NCT01234567.json"), []byte(ctgovFixture), 0o644)
	require.NoError(t, err)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(ctgovFixture))
	}))
	defer srv.Close()

	adapter := NewCTGovAdapter(srv.URL, dir)
	reg, err := adapter.Fetch(context.Background(), "NCT01234567")
	require.NoError(t, err)
	require.Equal(t, "A Trial", reg.BriefTitle)
	require.False(t, called, "local file should short-circuit the network fetch")
}

func TestCTGovAdapterFetchFallsBackToNetworkWhenLocalMissing(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ctgovFixture))
	}))
	defer srv.Close()

	adapter := NewCTGovAdapter(srv.URL, dir)
	reg, err := adapter.Fetch(context.Background(), "NCT01234567")
	require.NoError(t, err)
	require.Equal(t, "A Trial", reg.BriefTitle)
}

func TestCTGovAdapterFetchNotFoundDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewCTGovAdapter(srv.URL, "")
	_, err := adapter.Fetch(context.Background(), "NCT00000000")
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
