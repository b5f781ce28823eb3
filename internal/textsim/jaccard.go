// Package textsim provides token-set similarity scoring shared by the
// result cache and the interaction store.
package textsim

import "strings"

// Tokens lowercases the text and splits it into a set of whitespace-separated
// tokens. Duplicate tokens collapse into a single set member.
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard returns the token-set Jaccard similarity of two texts: the size of
// the token intersection over the size of the union. Two empty texts score 0.
func Jaccard(a, b string) float64 {
	return JaccardSets(Tokens(a), Tokens(b))
}

// JaccardSets computes Jaccard similarity over precomputed token sets. Use
// this when one side is scored against many candidates.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
