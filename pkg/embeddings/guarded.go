package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GuardedOptions configures a Guarded embedder.
type GuardedOptions struct {
	// Dimensions is the expected vector size. Zero skips the check.
	Dimensions int

	// MaxInputChars truncates input before embedding. Defaults to DefaultInputChars.
	MaxInputChars int

	// MaxConcurrent bounds in-flight calls into the model. Defaults to
	// DefaultConcurrency: models are assumed not to be safe for concurrent use.
	MaxConcurrent int64

	Logger *slog.Logger
}

// Guarded wraps a lazily loaded model so that it is loaded once, called
// within a concurrency bound, and always yields unit vectors of a fixed size.
type Guarded struct {
	factory Factory
	dims    int
	maxIn   int
	sem     *semaphore.Weighted
	logger  *slog.Logger

	mu    sync.Mutex
	inner Embedder
}

// NewGuarded creates a Guarded embedder. The model is not loaded until the
// first call to Embed or Load.
func NewGuarded(factory Factory, opts GuardedOptions) *Guarded {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultInputChars
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Guarded{
		factory: factory,
		dims:    opts.Dimensions,
		maxIn:   opts.MaxInputChars,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:  opts.Logger,
	}
}

// Load loads the model if it has not been loaded yet. A failed load is
// retried on the next call.
func (g *Guarded) Load(ctx context.Context) (Embedder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inner != nil {
		return g.inner, nil
	}

	inner, err := g.factory(ctx)
	if err != nil {
		g.logger.Error("embedding model load failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	g.inner = inner
	g.logger.Info("embedding model loaded", "dimensions", g.dims)
	return inner, nil
}

// Dimensions is the configured vector size.
func (g *Guarded) Dimensions() int {
	return g.dims
}

// Embed embeds text, returning ErrNoSignal for degenerate input.
func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text, g.maxIn)
	if Degenerate(text) {
		return nil, ErrNoSignal
	}

	inner, err := g.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for model: %w", ErrEmbedding, err)
	}
	defer g.sem.Release(1)

	vec, err := inner.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if g.dims > 0 && len(vec) != g.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(vec), g.dims)
	}

	return Unit(vec), nil
}

// Close closes the loaded model, if any.
func (g *Guarded) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inner == nil {
		return nil
	}
	err := g.inner.Close()
	g.inner = nil
	return err
}

var _ Embedder = (*Guarded)(nil)
