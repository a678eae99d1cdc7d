// Package testutils holds test doubles shared across package test suites.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	mu         sync.RWMutex
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Calls counts Embed invocations.
	Calls atomic.Int32
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

// Set registers the embedding returned for text.
func (m *MockEmbedder) Set(text string, embedding ...float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Embeddings[text] = embedding
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls.Add(1)

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}
