package embeddings

import (
	"math"
	"unicode"
	"unicode/utf8"
)

const (
	minSignalChars     = 3
	minDistinctChars   = 3
	maxDigitRatio      = 0.40
	normEpsilon        = 1e-12
	DefaultInputChars  = 80
	DefaultConcurrency = 1
)

// Degenerate reports whether text is too short, too repetitive or too numeric
// to produce a meaningful embedding.
func Degenerate(text string) bool {
	total, digits := 0, 0
	distinct := make(map[rune]struct{})
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsDigit(r) {
			digits++
		}
		distinct[r] = struct{}{}
	}

	if total < minSignalChars || len(distinct) < minDistinctChars {
		return true
	}
	return float64(digits)/float64(total) > maxDigitRatio
}

// Truncate cuts text to at most n runes. Zero or negative n disables truncation.
func Truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// Unit returns an L2 normalized copy of v. A zero vector stays zero instead of
// dividing by zero.
func Unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := max(math.Sqrt(sum), normEpsilon)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot is the inner product of two vectors of equal length. For unit vectors it
// is their cosine similarity.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := range n {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
