// Package match decides which of several OCR title candidates, if any,
// names a book already in the catalog.
package match

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/embeddings"
	"github.com/papercomputeco/shelf/pkg/normalize"
)

// Status classifies a decision.
type Status string

const (
	// StatusKnown means a candidate passed both gates.
	StatusKnown Status = "known"

	// StatusWeak means a candidate passed only the combined fallback.
	StatusWeak Status = "weak"

	// StatusUnknown means no candidate matched; Candidate is the best text to
	// insert as a new book.
	StatusUnknown Status = "unknown"
)

// ErrNoCandidates is returned when every candidate was empty or lacked signal.
var ErrNoCandidates = errors.New("no usable title candidates")

// Decision is the outcome of Decide.
type Decision struct {
	Status Status `json:"status"`

	// Title is the matched catalog title. Empty for StatusUnknown.
	Title string `json:"title,omitempty"`

	// Candidate is the normalized candidate the decision was made on.
	Candidate string `json:"candidate"`

	Confidence float64 `json:"confidence"`
	Semantic   float64 `json:"semantic"`
	Lexical    float64 `json:"lexical"`
}

// Matcher is the catalog lookup the engine depends on.
type Matcher interface {
	FindBestMatch(ctx context.Context, title string) (catalog.Match, error)
}

// Engine ranks candidates against the catalog.
type Engine struct {
	catalog Matcher
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(c Matcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{catalog: c, logger: logger}
}

type scored struct {
	candidate string
	match     catalog.Match
}

// better orders by strength, then combined score, then the longer candidate.
func (s scored) better(o scored) bool {
	if s.match.Strength != o.match.Strength {
		return s.match.Strength > o.match.Strength
	}
	if s.match.Combined != o.match.Combined {
		return s.match.Combined > o.match.Combined
	}
	return len(s.candidate) > len(o.candidate)
}

// Decide normalizes and de-duplicates candidates, looks each up in the
// catalog and returns the single best decision. Candidates without signal
// are skipped; any other lookup error aborts the decision.
func (e *Engine) Decide(ctx context.Context, candidates []string) (Decision, error) {
	seen := make(map[string]struct{}, len(candidates))
	var best *scored

	for _, raw := range candidates {
		candidate := normalize.Normalize(raw)
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		m, err := e.catalog.FindBestMatch(ctx, candidate)
		if errors.Is(err, embeddings.ErrNoSignal) || errors.Is(err, catalog.ErrEmptyTitle) {
			e.logger.Debug("skipping candidate without signal", "candidate", candidate)
			continue
		}
		if err != nil {
			return Decision{}, err
		}

		s := scored{candidate: candidate, match: m}
		if best == nil || s.better(*best) {
			best = &s
		}
	}

	if best == nil {
		return Decision{}, ErrNoCandidates
	}

	d := Decision{
		Candidate:  best.candidate,
		Confidence: best.match.Combined,
		Semantic:   best.match.Semantic,
		Lexical:    best.match.Lexical,
	}
	switch best.match.Strength {
	case catalog.StrengthStrong:
		d.Status = StatusKnown
		d.Title = best.match.Record.Title
	case catalog.StrengthWeak:
		d.Status = StatusWeak
		d.Title = best.match.Record.Title
	default:
		d.Status = StatusUnknown
	}

	e.logger.Debug("match decided",
		"status", d.Status,
		"title", d.Title,
		"candidate", d.Candidate,
		"confidence", d.Confidence,
	)
	return d, nil
}
