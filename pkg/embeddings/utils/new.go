// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/shelf/pkg/embeddings"
	"github.com/papercomputeco/shelf/pkg/embeddings/hashing"
	"github.com/papercomputeco/shelf/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType  string
	TargetURL     string
	Model         string
	Dimensions    int
	MaxInputChars int
	MaxConcurrent int64
	Logger        *slog.Logger
}

// NewFactory returns a factory that builds the configured provider. Ollama
// models are warmed up as part of the load.
func NewFactory(o *NewEmbedderOpts) (embeddings.Factory, error) {
	switch o.ProviderType {
	case "ollama":
		return func(ctx context.Context) (embeddings.Embedder, error) {
			e, err := ollama.NewEmbedder(ollama.EmbedderConfig{
				BaseURL: o.TargetURL,
				Model:   o.Model,
			})
			if err != nil {
				return nil, err
			}
			if err := e.Warmup(ctx); err != nil {
				return nil, err
			}
			return e, nil
		}, nil
	case "hashing":
		return func(context.Context) (embeddings.Embedder, error) {
			return hashing.NewEmbedder(o.Dimensions), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}

// NewEmbedder builds the configured provider behind a Guarded embedder.
func NewEmbedder(o *NewEmbedderOpts) (*embeddings.Guarded, error) {
	factory, err := NewFactory(o)
	if err != nil {
		return nil, err
	}

	return embeddings.NewGuarded(factory, embeddings.GuardedOptions{
		Dimensions:    o.Dimensions,
		MaxInputChars: o.MaxInputChars,
		MaxConcurrent: o.MaxConcurrent,
		Logger:        o.Logger,
	}), nil
}
