// Package provider selects a chat provider by name.
package provider

import (
	"context"

	"github.com/papercomputeco/shelf/pkg/llm"
)

// Provider sends a chat completion request to one model API.
type Provider interface {
	// Name returns the canonical provider name (e.g., "anthropic", "openai", "ollama")
	Name() string

	// Chat sends req and returns the assistant's answer.
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// Close releases idle connections.
	Close() error
}
