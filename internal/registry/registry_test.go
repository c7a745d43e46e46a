package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByRegistryType(t *testing.T) {
	ctgovSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ctgovFixture))
	}))
	defer ctgovSrv.Close()

	euctrMux := http.NewServeMux()
	euctrMux.HandleFunc("/text/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(euctrTextFixture)) })
	euctrMux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(euctrResultsHTMLFixture)) })
	euctrSrv := httptest.NewServer(euctrMux)
	defer euctrSrv.Close()

	drksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(drksHTMLFixture))
	}))
	defer drksSrv.Close()

	d := &Dispatcher{
		CTGov: NewCTGovAdapter(ctgovSrv.URL, ""),
		EUCTR: NewEUCTRAdapter(euctrSrv.URL+"/text/%s", euctrSrv.URL+"/html/%s"),
		DRKS:  NewDRKSAdapter(drksSrv.URL + "/%s"),
	}

	ctgovReg, err := d.Fetch(context.Background(), "NCT01234567")
	require.NoError(t, err)
	require.Equal(t, "A Trial", ctgovReg.BriefTitle)

	euctrReg, err := d.Fetch(context.Background(), "2018-001234-56")
	require.NoError(t, err)
	require.Contains(t, euctrReg.BriefTitle, "Effects of Drug X")

	drksReg, err := d.Fetch(context.Background(), "DRKS00012345")
	require.NoError(t, err)
	require.Equal(t, "A Public Trial Title", drksReg.BriefTitle)
}

func TestDispatcherUnrecognizedTrialIdReturnsError(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Fetch(context.Background(), "not-a-trial-id")
	require.Error(t, err)
}
