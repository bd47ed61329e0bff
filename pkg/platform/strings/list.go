// Package strings holds small string helpers shared by configuration and
// request parsing.
package strings

import (
	"strings"
)

// SplitList splits s on sep, trims each element and drops empties and
// duplicates. Order of first occurrence is preserved; an input with no
// elements yields nil.
func SplitList(s, sep string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(s, sep) {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
