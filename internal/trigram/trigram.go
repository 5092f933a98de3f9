// Package trigram implements pg_trgm-compatible string similarity, used by
// the in-memory organization store and as a reference for fuzzy-match tests.
package trigram

import "strings"

// Extract returns the set of trigrams of s the way pg_trgm builds them:
// lowercase, each word padded with two leading and one trailing space.
func Extract(s string) map[string]struct{} {
	grams := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(s)) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			grams[padded[i:i+3]] = struct{}{}
		}
	}
	return grams
}

// Similarity returns |trigrams(a) ∩ trigrams(b)| / |trigrams(a) ∪ trigrams(b)|,
// matching PostgreSQL's similarity(). Two empty strings score 0.
func Similarity(a, b string) float64 {
	ga := Extract(a)
	gb := Extract(b)
	if len(ga) == 0 && len(gb) == 0 {
		return 0
	}

	shared := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			shared++
		}
	}
	union := len(ga) + len(gb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
