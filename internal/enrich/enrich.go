// Package enrich implements spec.md §4.5: union discovery candidates across
// strategies, deduplicate by PMID while unioning source tags, batch-fetch
// PubMed records for the deduplicated set, and merge. Grounded on the
// teacher's internal/rag/retrieve/fusion.go union-by-ID pattern, simplified
// from rank fusion to a plain set union since this domain has no ranking
// signal to fuse — only presence/absence per strategy.
package enrich

import (
	"context"
	"sort"

	"manifold/internal/discovery"
	"manifold/internal/pubmedclient"
	"manifold/internal/trialmodel"
)

// Dedup unions candidates across strategies, deduplicating by PMID and
// unioning each entry's source set. The earliest non-empty publicationDate
// seen for a PMID is kept as a provisional date, to be overridden by
// enrichment (spec.md §8's "enrichment wins" resolution of the open
// question at §8 scenario notes).
func Dedup(tagged []discovery.TaggedCandidate) []trialmodel.Publication {
	byPMID := map[string]*trialmodel.Publication{}
	var order []string

	for _, tc := range tagged {
		if tc.PMID == "" {
			continue
		}
		pub, ok := byPMID[tc.PMID]
		if !ok {
			pub = &trialmodel.Publication{PMID: tc.PMID, Sources: map[string]bool{}}
			byPMID[tc.PMID] = pub
			order = append(order, tc.PMID)
		}
		pub.Sources[tc.Source] = true
		if tc.PublicationDate != "" && (pub.PublicationDate == "" || trialmodel.CompareISODates(tc.PublicationDate, pub.PublicationDate) < 0) {
			pub.PublicationDate = tc.PublicationDate
		}
	}

	sort.Strings(order)
	out := make([]trialmodel.Publication, 0, len(order))
	for _, pmid := range order {
		out = append(out, *byPMID[pmid])
	}
	return out
}

// Enrich batch-fetches full PubMed records for the deduplicated
// publications and merges them in, keyed primarily by PMID. A record
// enrichment's own publicationDate always overrides any strategy-provided
// date (spec.md §8 Open Question, resolved as "enrichment wins").
// Publications whose PMID is missing from the fetched records are returned
// unchanged, still carrying their source tags. If the fetch itself fails,
// Enrich returns the error and no publications.
func Enrich(ctx context.Context, client *pubmedclient.Client, pubs []trialmodel.Publication) ([]trialmodel.Publication, error) {
	if len(pubs) == 0 {
		return pubs, nil
	}

	pmids := make([]string, 0, len(pubs))
	for _, p := range pubs {
		pmids = append(pmids, p.PMID)
	}

	records, err := client.FetchRefs(ctx, pmids)
	if err != nil {
		return nil, err
	}
	byPMID := make(map[string]pubmedclient.PubmedRecord, len(records))
	for _, r := range records {
		byPMID[r.PMID] = r
	}

	out := make([]trialmodel.Publication, len(pubs))
	for i, p := range pubs {
		rec, ok := byPMID[p.PMID]
		if !ok {
			out[i] = p
			continue
		}
		merged := p
		merged.DOI = rec.DOI
		merged.Title = rec.Title
		merged.Authors = rec.Authors
		merged.Abstract = rec.Abstract
		merged.NCTIds = rec.NCTIds
		if rec.PublicationDate != "" {
			merged.PublicationDate = rec.PublicationDate
		}
		out[i] = merged
	}
	return out, nil
}

// UnionAndEnrich runs Dedup then Enrich in sequence, the composite operation
// PUB_DISCOVERY performs per trial (spec.md §4.8).
func UnionAndEnrich(ctx context.Context, client *pubmedclient.Client, tagged []discovery.TaggedCandidate) ([]trialmodel.Publication, error) {
	return Enrich(ctx, client, Dedup(tagged))
}
