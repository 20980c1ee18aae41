// internal/executor/anthropic_test.go
package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"replaylab/internal/checkpoint"
	"replaylab/internal/replay"
)

func TestAnthropicBackendComplete(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "pong"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer server.Close()

	backend := NewAnthropicBackend(server.URL, "test-key")
	resp, err := backend.Complete(context.Background(), &CompletionRequest{
		Model:  "claude-sonnet-4-20250514",
		System: "short answers",
		Messages: []checkpoint.WireMessage{
			{Role: replay.RoleUser, Content: "ping"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if gotPath != "/v1/messages" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("unexpected API version: %s", gotVersion)
	}
	if gotKey != "test-key" {
		t.Errorf("unexpected API key header: %s", gotKey)
	}
	if gotBody["model"] != "claude-sonnet-4-20250514" || gotBody["system"] != "short answers" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if gotBody["max_tokens"] != float64(DefaultMaxOutputTokens) {
		t.Errorf("expected default max_tokens, got %v", gotBody["max_tokens"])
	}

	if resp.StopReason != StopEndTurn {
		t.Errorf("unexpected stop reason: %s", resp.StopReason)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "pong" {
		t.Errorf("unexpected content: %+v", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestAnthropicBackendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	backend := NewAnthropicBackend(server.URL, "k")
	_, err := backend.Complete(context.Background(), &CompletionRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "slow down") || !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error should carry API detail: %v", err)
	}
}

func TestAnthropicBackendContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	backend := NewAnthropicBackend(server.URL, "k")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := backend.Complete(ctx, &CompletionRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !isTimeout(err) {
		t.Errorf("deadline error should classify as timeout: %v", err)
	}
}
