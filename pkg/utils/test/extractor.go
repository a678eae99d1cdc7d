package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/shelf/pkg/ocr"
)

// MockExtractor returns scripted OCR candidates.
type MockExtractor struct {
	mu         sync.RWMutex
	candidates []string

	// Err is returned instead of candidates when set.
	Err error

	// Calls counts Extract invocations.
	Calls atomic.Int32
}

// NewMockExtractor creates a MockExtractor answering with candidates.
func NewMockExtractor(candidates ...string) *MockExtractor {
	return &MockExtractor{candidates: candidates}
}

// Answer replaces the scripted candidates.
func (m *MockExtractor) Answer(candidates ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
}

func (m *MockExtractor) Extract(_ context.Context, _ []byte, _ string) ([]string, error) {
	m.Calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.candidates) == 0 {
		return nil, ocr.ErrNoText
	}
	out := make([]string, len(m.candidates))
	copy(out, m.candidates)
	return out, nil
}

// SlowExtractor blocks until Release is closed or the context ends.
type SlowExtractor struct {
	Release chan struct{}

	// Started is signalled once per call after it begins blocking.
	Started chan struct{}

	Candidates []string
}

// NewSlowExtractor creates a SlowExtractor answering with candidates once
// released.
func NewSlowExtractor(candidates ...string) *SlowExtractor {
	return &SlowExtractor{
		Release:    make(chan struct{}),
		Started:    make(chan struct{}, 16),
		Candidates: candidates,
	}
}

func (s *SlowExtractor) Extract(ctx context.Context, _ []byte, _ string) ([]string, error) {
	select {
	case s.Started <- struct{}{}:
	default:
	}
	select {
	case <-s.Release:
		return s.Candidates, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ ocr.Extractor = (*MockExtractor)(nil)
	_ ocr.Extractor = (*SlowExtractor)(nil)
)
