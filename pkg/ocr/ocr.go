// Package ocr reads candidate book titles off a photo with a vision model.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/papercomputeco/shelf/pkg/breaker"
	"github.com/papercomputeco/shelf/pkg/llm"
	"github.com/papercomputeco/shelf/pkg/llm/provider"
	"github.com/papercomputeco/shelf/pkg/metrics"
	"github.com/papercomputeco/shelf/pkg/normalize"
)

var (
	// ErrNoText is returned when the model found no readable title.
	ErrNoText = errors.New("no title text found in image")

	// ErrUnavailable is returned when the vision model cannot be reached or
	// its circuit breaker is open.
	ErrUnavailable = errors.New("ocr unavailable")
)

const (
	systemPrompt = "You read book covers and spines. Answer with text only."

	userPrompt = `Identify every book title visible in this photo.
Output one book per line in the form: Title - Author
If the author is not visible output only the title.
If no book title is readable output nothing.`

	maxTokens = 200
)

// Extractor turns an image into candidate title strings, best first.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mediaType string) ([]string, error)
}

// VisionExtractor prompts a chat provider with the image.
type VisionExtractor struct {
	provider provider.Provider
	model    string
	breaker  *gobreaker.CircuitBreaker[[]string]
	logger   *slog.Logger
}

// NewVisionExtractor creates an extractor using model on p.
func NewVisionExtractor(p provider.Provider, model string, logger *slog.Logger) *VisionExtractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &VisionExtractor{
		provider: p,
		model:    model,
		logger:   logger,
		breaker: breaker.New[[]string](breaker.Options{
			Name:    "ocr-" + p.Name(),
			Success: func(err error) bool { return errors.Is(err, ErrNoText) },
			Logger:  logger,
		}),
	}
}

// Extract asks the model for the titles in image and parses its answer into
// candidates.
func (v *VisionExtractor) Extract(ctx context.Context, image []byte, mediaType string) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveInference("ocr", start)

	candidates, err := v.breaker.Execute(func() ([]string, error) {
		temperature := 0.0
		tokens := maxTokens
		resp, err := v.provider.Chat(ctx, &llm.ChatRequest{
			Model:       v.model,
			System:      systemPrompt,
			Messages:    []llm.Message{llm.NewImageMessage("user", userPrompt, mediaType, image)},
			MaxTokens:   &tokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, err
		}

		text := resp.Message.GetText()
		candidates := normalize.Candidates(text)
		v.logger.Debug("ocr answer", "raw", text, "candidates", len(candidates))
		if len(candidates) == 0 {
			return nil, ErrNoText
		}
		return candidates, nil
	})

	switch {
	case err == nil:
		return candidates, nil
	case errors.Is(err, ErrNoText):
		return nil, err
	case breaker.Rejected(err):
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// Close releases the provider.
func (v *VisionExtractor) Close() error {
	return v.provider.Close()
}

var _ Extractor = (*VisionExtractor)(nil)
