package datefilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/trialmodel"
)

func pub(pmid, date string) trialmodel.Publication {
	return trialmodel.Publication{PMID: pmid, PublicationDate: date, Sources: map[string]bool{}}
}

func TestMaxDateFilterKeepsBeforeCutoffAndMissing(t *testing.T) {
	pubs := []trialmodel.Publication{
		pub("1", "2019-01-01"),
		pub("2", "2023-06-01"),
		pub("3", ""),
		pub("4", "not-a-date"),
	}
	out := MaxDateFilter(pubs, "2023-02-15")
	require.ElementsMatch(t, []string{"1", "3"}, pmidsOf(out.Eligible))
	require.ElementsMatch(t, []string{"2", "4"}, pmidsOf(out.Filtered))
}

func TestMinDateFilterDropsPredatingAndKeepsMissing(t *testing.T) {
	pubs := []trialmodel.Publication{
		pub("1", "2004-01-01"),
		pub("2", "2006-01-01"),
		pub("3", ""),
	}
	out := MinDateFilter(pubs, "2005-06-01")
	require.ElementsMatch(t, []string{"2", "3"}, pmidsOf(out.Eligible))
	require.ElementsMatch(t, []string{"1"}, pmidsOf(out.Filtered))
}

func TestMinDateFilterWithNoStartDateKeepsEverything(t *testing.T) {
	pubs := []trialmodel.Publication{pub("1", "1999-01-01"), pub("2", "")}
	out := MinDateFilter(pubs, "")
	require.Len(t, out.Eligible, 2)
	require.Empty(t, out.Filtered)
}

func TestApplyBothOrdersMaxThenMin(t *testing.T) {
	pubs := []trialmodel.Publication{
		pub("early", "2004-01-01"),  // predates start, passes max, fails min
		pub("late", "2025-01-01"),   // fails max
		pub("ok", "2010-01-01"),     // passes both
	}
	out := ApplyBoth(pubs, "2023-02-15", "2005-06-01")
	require.Equal(t, []string{"ok"}, pmidsOf(out.Eligible))
	require.ElementsMatch(t, []string{"early", "late"}, pmidsOf(out.Filtered))
}

func TestDateCompareStringOrdering(t *testing.T) {
	require.Negative(t, trialmodel.CompareISODates("2020", "2020-01"))
	require.Negative(t, trialmodel.CompareISODates("2020-01", "2020-01-01"))
}

func TestCutoffForKnownAndUnknownDatasets(t *testing.T) {
	require.Equal(t, "2020-11-17", CutoffFor("iv"))
	require.Equal(t, DefaultCutoff, CutoffFor("unknown-dataset"))
}

func pmidsOf(pubs []trialmodel.Publication) []string {
	out := make([]string, len(pubs))
	for i, p := range pubs {
		out[i] = p.PMID
	}
	return out
}
