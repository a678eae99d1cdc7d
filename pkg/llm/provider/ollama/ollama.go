package ollama

import (
	"context"
	"net/http"

	"github.com/papercomputeco/shelf/pkg/llm"
)

// DefaultBaseURL is the default Ollama API URL.
const DefaultBaseURL = "http://localhost:11434"

// Provider talks to Ollama's /api/chat without streaming.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates an Ollama provider.
func New(cfg llm.ClientConfig) *Provider {
	return &Provider{
		baseURL:    cfg.BaseURLOr(DefaultBaseURL),
		httpClient: cfg.HTTPClient(),
	}
}

func (p *Provider) Name() string {
	return "ollama"
}

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	stream := false
	body := ollamaRequest{
		Model:    req.Model,
		Stream:   &stream,
		Messages: make([]ollamaMessage, 0, len(req.Messages)+1),
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		converted := ollamaMessage{Role: msg.Role, Content: msg.GetText()}
		for _, img := range msg.Images() {
			converted.Images = append(converted.Images, img.ImageBase64)
		}
		body.Messages = append(body.Messages, converted)
	}

	var resp ollamaResponse
	if err := llm.PostJSON(ctx, p.httpClient, p.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return nil, err
	}

	return &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage("assistant", resp.Message.Content),
		StopReason: resp.DoneReason,
		Usage: &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
