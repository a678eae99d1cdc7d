package catalog

import "fmt"

// Strength grades a catalog match.
type Strength int

const (
	// StrengthNone means no record is close enough.
	StrengthNone Strength = iota

	// StrengthWeak means the combined score passed the fallback threshold but
	// one of the two gates failed.
	StrengthWeak

	// StrengthStrong means both the semantic and the lexical gate passed.
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthStrong:
		return "strong"
	case StrengthWeak:
		return "weak"
	default:
		return "none"
	}
}

// Thresholds is the deployment wide match policy.
type Thresholds struct {
	// Semantic is the minimum cosine similarity for a strong match.
	Semantic float64

	// Lexical is the minimum token set ratio for a strong match.
	Lexical float64

	// Fallback is the minimum combined score for a weak match.
	Fallback float64

	// SemanticWeight weighs the semantic score in the combined score; the
	// lexical score gets the remainder.
	SemanticWeight float64

	// Duplicate is the semantic similarity above which an insert returns the
	// existing record, provided the lexical gate also passes.
	Duplicate float64

	// TopK is the number of nearest neighbours verified per query.
	TopK int

	// MinTitleWords and MinTitleChars bound insertable titles.
	MinTitleWords int
	MinTitleChars int
}

// DefaultThresholds returns the stock policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Semantic:       0.72,
		Lexical:        0.80,
		Fallback:       0.66,
		SemanticWeight: 0.7,
		Duplicate:      0.87,
		TopK:           5,
		MinTitleWords:  2,
		MinTitleChars:  5,
	}
}

// Validate checks the policy is internally consistent.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"semantic":        t.Semantic,
		"lexical":         t.Lexical,
		"fallback":        t.Fallback,
		"semantic weight": t.SemanticWeight,
		"duplicate":       t.Duplicate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s threshold %v outside [0, 1]", name, v)
		}
	}
	if t.Duplicate < t.Semantic {
		return fmt.Errorf("duplicate threshold %v must not be below semantic threshold %v", t.Duplicate, t.Semantic)
	}
	if t.TopK < 1 {
		return fmt.Errorf("top k must be at least 1, got %d", t.TopK)
	}
	return nil
}

// Combined is the weighted blend of semantic and lexical scores.
func (t Thresholds) Combined(semantic, lexical float64) float64 {
	return t.SemanticWeight*semantic + (1-t.SemanticWeight)*lexical
}

// Classify grades a pair of scores. Boundaries are inclusive.
func Classify(semantic, lexical float64, t Thresholds) Strength {
	if semantic >= t.Semantic && lexical >= t.Lexical {
		return StrengthStrong
	}
	if t.Combined(semantic, lexical) >= t.Fallback {
		return StrengthWeak
	}
	return StrengthNone
}
