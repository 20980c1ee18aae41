// internal/executor/anthropic.go
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicBackend talks to the Anthropic Messages API. The zero http.Client
// timeout is deliberate: per-call deadlines come from the request context so
// the scheduler controls the budget, not the transport.
type AnthropicBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAnthropicBackend creates a Messages API backend. An empty apiKey falls
// back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicBackend(baseURL, apiKey string) *AnthropicBackend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &AnthropicBackend{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type anthropicError struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one non-streaming Messages API request
func (b *AnthropicBackend) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxOutputTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if b.apiKey != "" {
		httpReq.Header.Set("x-api-key", b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("messages API error [%d]: %s (type: %s)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Type)
		}
		return nil, fmt.Errorf("messages API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result CompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// WithHTTPClient overrides the transport, mainly for tests
func (b *AnthropicBackend) WithHTTPClient(c *http.Client) *AnthropicBackend {
	b.httpClient = c
	return b
}

var _ Backend = (*AnthropicBackend)(nil)
