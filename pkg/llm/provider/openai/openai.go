// Package openai implements a chat provider for OpenAI compatible Chat
// Completions APIs (OpenAI, Groq, vLLM and friends).
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/papercomputeco/shelf/pkg/llm"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com"

// Provider talks to /v1/chat/completions.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates an OpenAI compatible provider.
func New(cfg llm.ClientConfig) *Provider {
	return &Provider{
		baseURL:    cfg.BaseURLOr(DefaultBaseURL),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient(),
	}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]openaiMessage, 0, len(req.Messages)+1),
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, convertMessage(msg))
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var resp openaiResponse
	if err := llm.PostJSON(ctx, p.httpClient, p.baseURL+"/v1/chat/completions", headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", llm.ErrBadResponse)
	}

	choice := resp.Choices[0]
	result := &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage("assistant", choice.Message.Content),
		StopReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// convertMessage keeps text-only messages as plain strings and sends images
// as data URIs.
func convertMessage(msg llm.Message) openaiMessage {
	if len(msg.Images()) == 0 {
		return openaiMessage{Role: msg.Role, Content: msg.GetText()}
	}

	parts := make([]openaiContentPart, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, openaiContentPart{Type: "text", Text: block.Text})
		case "image":
			parts = append(parts, openaiContentPart{
				Type:     "image_url",
				ImageURL: &openaiImageURL{URL: "data:" + block.MediaType + ";base64," + block.ImageBase64},
			})
		}
	}
	return openaiMessage{Role: msg.Role, Content: parts}
}

func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
