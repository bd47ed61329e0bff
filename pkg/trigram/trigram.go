// Package trigram computes pg_trgm compatible trigram sets and similarity so the
// in-memory search backend ranks fuzzy matches the same way PostgreSQL does.
package trigram

import (
	"sort"
	"strings"
	"unicode"
)

// Set returns the sorted, de-duplicated trigrams of s. Every alphanumeric word
// is padded with two leading blanks and one trailing blank before slicing,
// matching pg_trgm. Input is expected to be normalized already.
func Set(s string) []string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(s)+2*len(words))
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			seen[string(padded[i:i+3])] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Jaccard is pg_trgm similarity from set sizes: shared trigrams over the
// size of the union. Empty sets score 0.
func Jaccard(shared, a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	return float64(shared) / float64(a+b-shared)
}
