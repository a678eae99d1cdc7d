// Package embeddings turns normalized titles into unit length vectors.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Factory loads an Embedder. It is called lazily on first use and again after
// a failed load.
type Factory func(ctx context.Context) (Embedder, error)
