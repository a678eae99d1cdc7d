// Package normalize turns raw OCR and model output into canonical book titles.
//
// A normalized title is lowercase ASCII letters, digits and single spaces, with
// publisher noise words and very short tokens removed. Normalize is pure and
// idempotent: Normalize(Normalize(x)) == Normalize(x) for every x.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinTokenLen drops articles and OCR crumbs such as "a", "of", "ii".
const DefaultMinTokenLen = 3

// confusions are literal substring fixes for common OCR misreads.
var confusions = []string{
	"systern", "system",
	"cornputer", "computer",
	"operatng", "operating",
	"lernng", "learning",
	"machne", "machine",
	"artifcial", "artificial",
	"inteligence", "intelligence",
	"pyth0n", "python",
	"alg0rithm", "algorithm",
	"databse", "database",
	"netw0rk", "network",
}

// stopwords are edition and publisher words that never distinguish one title
// from another.
var stopwords = []string{
	"edition", "third", "fourth", "fifth", "sixth", "seventh",
	"international", "student", "version", "volume", "vol", "part",
	"series", "publication", "press", "publisher",
	"pearson", "mcgraw", "wiley", "oxford", "university",
}

var confusionReplacer = strings.NewReplacer(confusions...)

// Normalizer holds the immutable normalization policy. It is safe for
// concurrent use.
type Normalizer struct {
	minTokenLen int
	stopwords   map[string]struct{}
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMinTokenLen drops tokens shorter than n runes. Zero keeps every token.
func WithMinTokenLen(n int) Option {
	return func(nz *Normalizer) {
		nz.minTokenLen = n
	}
}

// WithStopwords adds words to the default stopword set.
func WithStopwords(words ...string) Option {
	return func(nz *Normalizer) {
		for _, w := range words {
			nz.stopwords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
	}
}

// New creates a Normalizer with the default stopwords and minimum token length.
func New(opts ...Option) *Normalizer {
	nz := &Normalizer{
		minTokenLen: DefaultMinTokenLen,
		stopwords:   make(map[string]struct{}, len(stopwords)),
	}
	for _, w := range stopwords {
		nz.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

var defaultNormalizer = New()

// Normalize normalizes raw with the default policy.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize converts raw into its canonical title form. Empty or pure noise
// input yields the empty string.
func (nz *Normalizer) Normalize(raw string) string {
	s := fold(strings.ToLower(raw))
	s = fixConfusions(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, tok := range tokens {
		if len(tok) < nz.minTokenLen {
			continue
		}
		if _, stop := nz.stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

// Words counts the tokens of an already normalized title.
func Words(normalized string) int {
	return len(strings.Fields(normalized))
}

// fold strips diacritics so "Café" and "Cafe" normalize alike. Transformers
// carry state, so a fresh chain is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// fixConfusions applies the confusion dictionary until nothing changes.
func fixConfusions(s string) string {
	for range len(confusions) / 2 {
		next := confusionReplacer.Replace(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}
