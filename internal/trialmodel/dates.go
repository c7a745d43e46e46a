package trialmodel

import "regexp"

var partialISODate = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)

// IsValidPartialISODate reports whether s is a well-formed partial ISO date
// of the shape YYYY, YYYY-MM, or YYYY-MM-DD.
func IsValidPartialISODate(s string) bool {
	return s != "" && partialISODate.MatchString(s)
}

// CompareISODates compares two partial ISO date strings lexicographically on
// their prefix, which sorts "2020" < "2020-01" < "2020-01-01" intuitively
// (spec.md §4.8 tie-break rule and §8 boundary behavior).
func CompareISODates(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
