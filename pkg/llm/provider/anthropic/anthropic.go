// Package anthropic implements a chat provider for Anthropic's Messages API.
package anthropic

import (
	"context"
	"net/http"

	"github.com/papercomputeco/shelf/pkg/llm"
)

const (
	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultMaxTokens is sent when the request leaves max_tokens unset;
	// the API requires it.
	DefaultMaxTokens = 1024

	apiVersion = "2023-06-01"
)

// Provider talks to /v1/messages.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates an Anthropic provider.
func New(cfg llm.ClientConfig) *Provider {
	return &Provider{
		baseURL:    cfg.BaseURLOr(DefaultBaseURL),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient(),
	}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   DefaultMaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]anthropicMessage, 0, len(req.Messages)),
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}

	for _, msg := range req.Messages {
		converted := anthropicMessage{Role: msg.Role}
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				converted.Content = append(converted.Content, anthropicContentBlock{Type: "text", Text: block.Text})
			case "image":
				converted.Content = append(converted.Content, anthropicContentBlock{
					Type: "image",
					Source: &anthropicSource{
						Type:      "base64",
						MediaType: block.MediaType,
						Data:      block.ImageBase64,
					},
				})
			}
		}
		body.Messages = append(body.Messages, converted)
	}

	headers := map[string]string{"anthropic-version": apiVersion}
	if p.apiKey != "" {
		headers["x-api-key"] = p.apiKey
	}

	var resp anthropicResponse
	if err := llm.PostJSON(ctx, p.httpClient, p.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	result := &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage("assistant", text),
		StopReason: resp.StopReason,
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return result, nil
}

func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
