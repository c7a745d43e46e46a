// Package datefilter implements the two publication gates of spec.md §4.6:
// a max-date cutoff (for validation runs against a point-in-time dataset)
// and a min-date floor (dropping publications that clearly predate trial
// start). Neither filter raises on missing or malformed dates. A publication
// with an invalid date string is filtered out by the max-date gate and kept
// eligible by the min-date gate.
package datefilter

import (
	"manifold/internal/trialmodel"
)

// Outcome is the split produced by a filter: publications that pass
// (Eligible) and those that don't (Filtered). Every input publication ends
// up in exactly one of the two slices.
type Outcome struct {
	Eligible []trialmodel.Publication
	Filtered []trialmodel.Publication
}

// MaxDateFilter keeps publications with publicationDate < cutoff, or a
// missing date. An invalid (non-ISO-partial) date string is treated as
// ineligible, not as missing.
func MaxDateFilter(pubs []trialmodel.Publication, cutoff string) Outcome {
	var out Outcome
	for _, p := range pubs {
		if p.PublicationDate == "" {
			out.Eligible = append(out.Eligible, p)
			continue
		}
		if !trialmodel.IsValidPartialISODate(p.PublicationDate) {
			out.Filtered = append(out.Filtered, p)
			continue
		}
		if trialmodel.CompareISODates(p.PublicationDate, cutoff) < 0 {
			out.Eligible = append(out.Eligible, p)
		} else {
			out.Filtered = append(out.Filtered, p)
		}
	}
	return out
}

// MinDateFilter drops publications that clearly predate the registration's
// startDate. Missing dates are retained (spec.md §8 invariant: no
// publication with publicationDate < startDate survives, but missing dates
// are always kept). An invalid date string on the publication is retained
// too — the filter only has grounds to drop a date it can compare.
func MinDateFilter(pubs []trialmodel.Publication, startDate string) Outcome {
	var out Outcome
	if startDate == "" || !trialmodel.IsValidPartialISODate(startDate) {
		out.Eligible = pubs
		return out
	}
	for _, p := range pubs {
		if p.PublicationDate == "" || !trialmodel.IsValidPartialISODate(p.PublicationDate) {
			out.Eligible = append(out.Eligible, p)
			continue
		}
		if trialmodel.CompareISODates(p.PublicationDate, startDate) < 0 {
			out.Filtered = append(out.Filtered, p)
		} else {
			out.Eligible = append(out.Eligible, p)
		}
	}
	return out
}

// ApplyBoth applies the max-date filter then the min-date filter, the order
// mandated by spec.md §4.8's PUB_DISCOVERY stage ("apply max-filter then
// min-filter"). The returned Filtered set is the union of both stages'
// rejects.
func ApplyBoth(pubs []trialmodel.Publication, maxCutoff, minStartDate string) Outcome {
	afterMax := MaxDateFilter(pubs, maxCutoff)
	afterMin := MinDateFilter(afterMax.Eligible, minStartDate)

	filtered := make([]trialmodel.Publication, 0, len(afterMax.Filtered)+len(afterMin.Filtered))
	filtered = append(filtered, afterMax.Filtered...)
	filtered = append(filtered, afterMin.Filtered...)

	return Outcome{Eligible: afterMin.Eligible, Filtered: filtered}
}

// ValidationCutoffs maps the `dataset` column (spec.md §6) to its max-date
// cutoff. Unrecognized datasets fall back to DefaultCutoff.
var ValidationCutoffs = map[string]string{
	"iv": "2020-11-17",
}

// DefaultCutoff is used for validation runs whose dataset is unrecognized or
// unset.
const DefaultCutoff = "2023-02-15"

// CutoffFor resolves a dataset name to its max-date cutoff.
func CutoffFor(dataset string) string {
	if cutoff, ok := ValidationCutoffs[dataset]; ok {
		return cutoff
	}
	return DefaultCutoff
}
