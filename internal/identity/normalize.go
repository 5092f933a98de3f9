package identity

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// companySuffixes is the closed set of legal-form tokens stripped from the
// end of normalized names, longest first.
var companySuffixes = []string{
	"LIMITED", "PRIVATE", "COMPANY",
	"CORP", "PJSC", "GMBH",
	"LTD", "LLC", "INC", "PLC", "PVT", "SAS", "FZE", "SRL",
	"CO", "SA", "BV", "AG", "NV", "KG", "SL",
}

func init() {
	sort.Slice(companySuffixes, func(i, j int) bool {
		return len(companySuffixes[i]) > len(companySuffixes[j])
	})
}

// stripMarks removes combining marks after NFKD decomposition, folding
// accented characters onto their base letters.
var stripMarks = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeName reduces a raw organization name to its matching form:
// uppercase, decompose and strip diacritics, punctuation to spaces, collapse
// whitespace, then iteratively strip company suffixes. Empty result means
// the name carries no identity (and the candidate is dropped).
func NormalizeName(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	words = stripSuffixes(words)
	return strings.Join(words, " ")
}

// stripSuffixes removes trailing suffix tokens until none match or one word
// remains. Longest-first ordering makes LIMITED win over LTD prefixes.
func stripSuffixes(words []string) []string {
	for len(words) > 1 {
		last := words[len(words)-1]
		stripped := false
		for _, suffix := range companySuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return words
}
