// Package explain produces short student-oriented explanations of books.
//
// Metadata comes from a Books source; the text comes from a chat model.
// When the model is unavailable a summary is assembled from the metadata
// alone, so Explain only fails when the caller's context does.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/papercomputeco/shelf/pkg/breaker"
	"github.com/papercomputeco/shelf/pkg/llm"
	"github.com/papercomputeco/shelf/pkg/llm/provider"
	"github.com/papercomputeco/shelf/pkg/metrics"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"

	// DefaultQuestion is asked when the caller asks nothing specific.
	DefaultQuestion = "What is this book about and who is it for?"

	systemPrompt = `You are a friendly teaching assistant.
Explain clearly: intuition first, then the definition, then a simple real-life example.
Keep the answer under 200 words.`

	maxTokens   = 300
	temperature = 0.4

	// minDescriptionChars is the shortest description worth summarizing.
	minDescriptionChars = 40
)

// Explanation is the answer for one book.
type Explanation struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Text    string   `json:"text"`
	Source  string   `json:"source"`
	Volume  *Volume  `json:"volume,omitempty"`
}

// Options configures an Explainer.
type Options struct {
	Books Books

	// Provider may be nil, in which case every explanation is a fallback.
	Provider provider.Provider
	Model    string
	Logger   *slog.Logger
}

// Explainer combines metadata lookup and a chat model.
type Explainer struct {
	books    Books
	provider provider.Provider
	model    string
	breaker  *gobreaker.CircuitBreaker[string]
	logger   *slog.Logger
}

// New creates an Explainer.
func New(opts Options) *Explainer {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	e := &Explainer{
		books:    opts.Books,
		provider: opts.Provider,
		model:    opts.Model,
		logger:   opts.Logger,
	}
	if opts.Provider != nil {
		e.breaker = breaker.New[string](breaker.Options{
			Name:   "explain-" + opts.Provider.Name(),
			Logger: opts.Logger,
		})
	}
	return e
}

// Explain answers question about the book titled title.
func (e *Explainer) Explain(ctx context.Context, title, question string) (*Explanation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultQuestion
	}

	volume := e.lookup(ctx, title)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Explanation{
		Title:   volume.Title,
		Authors: volume.Authors,
		Volume:  volume,
	}

	if e.provider != nil {
		text, err := e.ask(ctx, volume, question)
		if err == nil && strings.TrimSpace(text) != "" {
			result.Text = strings.TrimSpace(text)
			result.Source = SourceModel
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("explanation model failed, using fallback", "title", title, "error", err)
	}

	result.Text = Fallback(volume)
	result.Source = SourceFallback
	return result, nil
}

// lookup returns metadata for title or a bare Volume carrying the title.
func (e *Explainer) lookup(ctx context.Context, title string) *Volume {
	if e.books == nil {
		return &Volume{Title: title}
	}
	volume, err := e.books.Lookup(ctx, title)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Warn("book metadata lookup failed", "title", title, "error", err)
		}
		return &Volume{Title: title}
	}
	if volume.Title == "" {
		volume.Title = title
	}
	return volume
}

func (e *Explainer) ask(ctx context.Context, volume *Volume, question string) (string, error) {
	start := time.Now()
	defer metrics.ObserveInference("explain", start)

	return e.breaker.Execute(func() (string, error) {
		tokens := maxTokens
		temp := temperature
		resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
			Model:       e.model,
			System:      systemPrompt,
			Messages:    []llm.Message{llm.NewTextMessage("user", prompt(volume, question))},
			MaxTokens:   &tokens,
			Temperature: &temp,
		})
		if err != nil {
			return "", err
		}
		return resp.Message.GetText(), nil
	})
}

func prompt(v *Volume, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BOOK: %s\n", v.Title)
	if len(v.Authors) > 0 {
		fmt.Fprintf(&b, "AUTHOR: %s\n", strings.Join(v.Authors, ", "))
	}
	if len(v.Categories) > 0 {
		fmt.Fprintf(&b, "CATEGORY: %s\n", strings.Join(v.Categories, ", "))
	}
	if len(v.Description) >= minDescriptionChars {
		fmt.Fprintf(&b, "\nDESCRIPTION:\n%s\n", v.Description)
	}
	fmt.Fprintf(&b, "\nQUESTION:\n%s\n", question)
	return b.String()
}

// Fallback builds a deterministic summary from metadata alone.
func Fallback(v *Volume) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q", v.Title)
	if len(v.Authors) > 0 {
		fmt.Fprintf(&b, " by %s", strings.Join(v.Authors, ", "))
	}
	if v.PublishedDate != "" {
		fmt.Fprintf(&b, " (%s)", v.PublishedDate)
	}
	b.WriteString(".")

	if len(v.Description) < minDescriptionChars {
		b.WriteString(" No description is available for this book yet.")
		return b.String()
	}

	b.WriteString(" ")
	b.WriteString(firstSentences(v.Description, 2))
	return b.String()
}

// firstSentences returns up to n sentences of text.
func firstSentences(text string, n int) string {
	count := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		count++
		if count == n {
			return text[:i+1]
		}
	}
	return text
}

// Close releases the model provider.
func (e *Explainer) Close() error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Close()
}
