package pubmedclient

import "regexp"

// nctMentionPattern scans free text (title/abstract) for loose NCT mentions,
// distinct from trialmodel's strict validators: a publication may mention a
// trial ID in prose without it being a canonical, normalized TrialId.
var nctMentionPattern = regexp.MustCompile(`NCT\d{8}`)

func extractNCTIds(text string) []string {
	matches := nctMentionPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
