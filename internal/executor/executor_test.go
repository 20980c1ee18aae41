// internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"replaylab/internal/replay"
)

// stubBackend replays a scripted sequence of responses and errors. Safe for
// concurrent use so scheduler tests can share one instance.
type stubBackend struct {
	mu       sync.Mutex
	script   []stubTurn
	calls    int
	requests []*CompletionRequest
}

type stubTurn struct {
	resp *CompletionResponse
	err  error
}

func textResponse(text, stopReason string, input, output int64) *CompletionResponse {
	return &CompletionResponse{
		Content:    []ContentBlock{{Type: "text", Text: text}},
		StopReason: stopReason,
		Usage:      Usage{InputTokens: input, OutputTokens: output},
	}
}

func (s *stubBackend) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.calls >= len(s.script) {
		return nil, fmt.Errorf("unexpected call %d", s.calls)
	}
	turn := s.script[s.calls]
	s.calls++
	return turn.resp, turn.err
}

func testCheckpoint() *replay.Checkpoint {
	return &replay.Checkpoint{
		ConversationID: "sess-1",
		Step:           2,
		Messages: []replay.Message{
			{Role: replay.RoleUser, Content: "what is 2+2?"},
			{Role: replay.RoleAssistant, Content: "thinking about it"},
		},
	}
}

func TestExecuteBranchInjectAndSingleTurn(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: textResponse("the answer is 4", StopEndTurn, 100, 20)},
	}}

	cfg := replay.BranchConfig{
		Name:          "baseline",
		Model:         "claude-sonnet-4-20250514",
		InjectMessage: "please answer directly",
	}

	result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if result.Status != replay.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected injected user + assistant reply, got %d messages", len(result.Messages))
	}
	if result.Messages[0].Role != replay.RoleUser || result.Messages[0].Content != "please answer directly" {
		t.Errorf("unexpected injected message: %+v", result.Messages[0])
	}
	if result.Messages[1].Role != replay.RoleAssistant || result.Messages[1].Content != "the answer is 4" {
		t.Errorf("unexpected assistant message: %+v", result.Messages[1])
	}
	if result.TokenUsage == nil {
		t.Fatal("expected token usage on success")
	}
	if result.TokenUsage.TotalTokens != 120 {
		t.Errorf("expected 120 total tokens, got %d", result.TokenUsage.TotalTokens)
	}

	// The injected message must also reach the backend
	req := backend.requests[0]
	last := req.Messages[len(req.Messages)-1]
	if last.Role != replay.RoleUser || last.Content != "please answer directly" {
		t.Errorf("injected message missing from wire request: %+v", last)
	}
}

func TestExecuteBranchMultiTurnAccumulation(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: textResponse("step one", "tool_use", 50, 10)},
		{resp: textResponse("step two", StopEndTurn, 60, 15)},
	}}

	cfg := replay.BranchConfig{Name: "multi", Model: "claude-sonnet-4-20250514", MaxTurns: 5}
	result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if result.Status != replay.StatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 assistant messages, got %d", len(result.Messages))
	}
	if result.TokenUsage.InputTokens != 110 || result.TokenUsage.OutputTokens != 25 {
		t.Errorf("unexpected token accumulation: %+v", result.TokenUsage)
	}

	// Second request must carry the first assistant reply
	second := backend.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Content != "step one" {
		t.Errorf("expected prior reply on wire, got %+v", last)
	}
}

func TestExecuteBranchMaxTurnsExhaustion(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: textResponse("going", "tool_use", 10, 5)},
		{resp: textResponse("still going", "tool_use", 10, 5)},
	}}

	cfg := replay.BranchConfig{Name: "capped", Model: "claude-sonnet-4-20250514", MaxTurns: 2}
	result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if result.Status != replay.StatusSuccess {
		t.Fatalf("expected success after exhausting turns, got %s", result.Status)
	}
	if backend.calls != 2 {
		t.Errorf("expected exactly 2 backend calls, got %d", backend.calls)
	}
	if len(result.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(result.Messages))
	}
}

func TestExecuteBranchBackendErrorPreservesPartialProgress(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: textResponse("partial work", "tool_use", 10, 5)},
		{err: errors.New("backend exploded")},
	}}

	cfg := replay.BranchConfig{Name: "flaky", Model: "claude-sonnet-4-20250514", MaxTurns: 5}
	result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if result.Status != replay.StatusError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if result.Error != "backend exploded" {
		t.Errorf("unexpected error message: %q", result.Error)
	}
	if len(result.Messages) != 1 || result.Messages[0].Content != "partial work" {
		t.Errorf("expected partial progress preserved, got %+v", result.Messages)
	}
	if result.TokenUsage != nil {
		t.Error("token usage must be omitted on failure")
	}
}

func TestExecuteBranchTimeoutClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"context deadline", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("request failed: %w", context.DeadlineExceeded)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{script: []stubTurn{{err: tc.err}}}
			cfg := replay.BranchConfig{Name: "slow", Model: "claude-sonnet-4-20250514"}
			result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

			if result.Status != replay.StatusTimeout {
				t.Fatalf("expected timeout status, got %s", result.Status)
			}
			if result.Error != "execution timed out" {
				t.Errorf("unexpected timeout message: %q", result.Error)
			}
			if result.TokenUsage != nil {
				t.Error("token usage must be omitted on timeout")
			}
		})
	}
}

func TestExecuteBranchConcatenatesTextBlocks(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: &CompletionResponse{
			Content: []ContentBlock{
				{Type: "text", Text: "first"},
				{Type: "tool_use"},
				{Type: "text", Text: "second"},
			},
			StopReason: StopEndTurn,
		}},
	}}

	cfg := replay.BranchConfig{Name: "blocks", Model: "claude-sonnet-4-20250514"}
	result := ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if result.Messages[0].Content != "firstsecond" {
		t.Errorf("expected concatenated text blocks, got %q", result.Messages[0].Content)
	}
}

func TestExecuteBranchSystemPromptForwarded(t *testing.T) {
	backend := &stubBackend{script: []stubTurn{
		{resp: textResponse("ok", StopEndTurn, 1, 1)},
	}}

	cfg := replay.BranchConfig{
		Name:         "prompted",
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "be terse",
	}
	ExecuteBranch(context.Background(), testCheckpoint(), cfg, backend)

	if backend.requests[0].System != "be terse" {
		t.Errorf("system prompt not forwarded: %q", backend.requests[0].System)
	}
	if backend.requests[0].MaxTokens != DefaultMaxOutputTokens {
		t.Errorf("unexpected max tokens: %d", backend.requests[0].MaxTokens)
	}
}
