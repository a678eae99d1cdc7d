// Package llm holds the provider-agnostic chat types and the HTTP plumbing
// shared by the chat providers used for OCR and explanations.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// DefaultTimeout bounds a single chat round trip when none is configured.
const DefaultTimeout = 60 * time.Second

var (
	// ErrUnavailable is returned when the provider could not be reached or
	// answered with a server side or rate limit status.
	ErrUnavailable = errors.New("model provider unavailable")

	// ErrBadResponse is returned when the provider answered with a client
	// error status or a body that could not be decoded.
	ErrBadResponse = errors.New("model provider bad response")
)

// ClientConfig configures a chat provider.
type ClientConfig struct {
	// BaseURL is the provider's API root. Each provider has its own default.
	BaseURL string

	// APIKey is sent in the provider's auth header when set.
	APIKey string

	// Timeout bounds a single HTTP round trip. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// HTTPClient builds the http.Client for cfg.
func (cfg ClientConfig) HTTPClient() *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// BaseURLOr returns cfg.BaseURL or fallback when unset.
func (cfg ClientConfig) BaseURLOr(fallback string) string {
	if cfg.BaseURL == "" {
		return fallback
	}
	return cfg.BaseURL
}

// PostJSON posts body as JSON to url and decodes the answer into out.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshaling request: %w", ErrBadResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrBadResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)
		}
		return fmt.Errorf("%w: sending request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(snippet))
		}
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrBadResponse, err)
	}
	return nil
}
