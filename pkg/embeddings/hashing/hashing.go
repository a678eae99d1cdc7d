// Package hashing implements an offline Embedder using feature hashing of
// words and character trigrams. It needs no model and is deterministic, which
// makes it useful for tests and air-gapped deployments.
package hashing

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/papercomputeco/shelf/pkg/embeddings"
)

const (
	// DefaultDimensions matches the default ollama model.
	DefaultDimensions = 384

	wordWeight    = 1.0
	trigramWeight = 0.5
)

// Embedder hashes text features into a fixed number of buckets.
type Embedder struct {
	dims int
}

// NewEmbedder creates a hashing embedder with dims buckets.
func NewEmbedder(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Embed returns the raw (not normalized) feature vector of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	text = strings.ToLower(text)

	for _, word := range strings.Fields(text) {
		e.add(vec, "w:"+word, wordWeight)
	}

	padded := []rune(" " + strings.Join(strings.Fields(text), " ") + " ")
	for i := 0; i+3 <= len(padded); i++ {
		e.add(vec, "t:"+string(padded[i:i+3]), trigramWeight)
	}

	return vec, nil
}

func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(e.dims)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Dimensions is the number of buckets.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
