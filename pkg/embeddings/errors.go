package embeddings

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrModelLoad is returned when the embedding model cannot be loaded.
	ErrModelLoad = errors.New("embedding model load failed")

	// ErrDimensions is returned when a model produces a vector of the wrong size.
	ErrDimensions = errors.New("embedding dimensions mismatch")

	// ErrNoSignal is returned for input too short or too noisy to embed
	// meaningfully. Callers skip the input rather than treat it as a miss.
	ErrNoSignal = errors.New("input has no usable signal")
)
