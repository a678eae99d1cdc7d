// Package similarity provides the lexical title metrics shared by the catalog,
// the ownership ledger and the stability tracker. Every score is in [0, 1].
package similarity

import (
	"slices"
	"strings"

	"github.com/agext/levenshtein"
)

const (
	// DefaultThreshold is the fuzzy equivalence threshold for titles.
	DefaultThreshold = 0.88

	// DefaultLengthMargin skips fuzzy comparison for titles whose lengths
	// differ by more than this many characters.
	DefaultLengthMargin = 12
)

// indel scores with substitutions costing a delete plus an insert, so the
// similarity is 1 - distance/(len(a)+len(b)).
var indel = levenshtein.NewParams().SubCost(2)

// Ratio is the normalized indel similarity of a and b.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, indel)
}

// TokenSetRatio compares the token sets of a and b. The shared tokens are
// compared against each side's full set and the two sides against each other;
// the best of the three wins. When one side's tokens are a subset of the
// other's, the score is 1.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == len(tb) {
			return 1
		}
		return 0
	}

	var sect, onlyA, onlyB []string
	for _, t := range ta {
		if _, found := slices.BinarySearch(tb, t); found {
			sect = append(sect, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tb {
		if _, found := slices.BinarySearch(ta, t); !found {
			onlyB = append(onlyB, t)
		}
	}

	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	s := strings.Join(sect, " ")
	withA := join(s, strings.Join(onlyA, " "))
	withB := join(s, strings.Join(onlyB, " "))

	best := Ratio(withA, withB)
	if s != "" {
		best = max(best, Ratio(s, withA), Ratio(s, withB))
	}
	return best
}

// Score is the best of Ratio and TokenSetRatio.
func Score(a, b string) float64 {
	return max(Ratio(a, b), TokenSetRatio(a, b))
}

// Equivalent reports whether two normalized titles name the same book: they
// are equal, or their lengths are within margin and Score reaches threshold.
func Equivalent(a, b string, threshold float64, margin int) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if margin >= 0 && abs(len(a)-len(b)) > margin {
		return false
	}
	return Score(a, b) >= threshold
}

// Matcher binds a threshold and length margin for repeated Equivalent checks.
type Matcher struct {
	Threshold    float64
	LengthMargin int
}

// DefaultMatcher uses DefaultThreshold and DefaultLengthMargin.
func DefaultMatcher() Matcher {
	return Matcher{Threshold: DefaultThreshold, LengthMargin: DefaultLengthMargin}
}

// Equivalent is Equivalent(a, b, m.Threshold, m.LengthMargin).
func (m Matcher) Equivalent(a, b string) bool {
	return Equivalent(a, b, m.Threshold, m.LengthMargin)
}

func tokenSet(s string) []string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
