package graph

import (
	"slices"
	"strings"

	"github.com/atikulmunna/sagrag/internal/extract"
)

var negators = []string{
	" not ", " no ", " never ", " cannot ", " can't ", " won't ",
	" isn't ", " aren't ", " wasn't ", " weren't ",
}

// Negated reports whether text carries a negation word
func Negated(text string) bool {
	padded := " " + strings.ToLower(text) + " "
	for _, n := range negators {
		if strings.Contains(padded, n) {
			return true
		}
	}
	return false
}

// RoughMatch reports whether a and b share at least
// max(3, ratio*min(|a|,|b|)) alphabetic tokens longer than two characters
func RoughMatch(a, b string, ratio float64) bool {
	ta := extract.AlphaTokenSet(a)
	tb := extract.AlphaTokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}

	overlap := 0
	for t := range ta {
		if tb[t] {
			overlap++
		}
	}
	return overlap >= max(3, int(ratio*float64(min(len(ta), len(tb)))))
}

// EntityOverlap reports whether some entity appears in both texts
func EntityOverlap(a, b string, entities []string) bool {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	for _, e := range entities {
		le := strings.ToLower(e)
		if le != "" && strings.Contains(la, le) && strings.Contains(lb, le) {
			return true
		}
	}
	return false
}

// Contradicts applies the ingestion-time contradiction test: the claims must
// roughly match, share an entity or disagree on their numbers, and differ in
// negation.
func Contradicts(a, b string, entities []string, ratio float64) bool {
	if !RoughMatch(a, b, ratio) {
		return false
	}
	if !EntityOverlap(a, b, entities) {
		na := extract.Numbers(a)
		nb := extract.Numbers(b)
		if len(na) == 0 || len(nb) == 0 || slices.Equal(na, nb) {
			return false
		}
	}
	return Negated(a) != Negated(b)
}
