// internal/executor/backend.go
package executor

import (
	"context"

	"replaylab/internal/checkpoint"
)

// StopEndTurn is the stop reason signalling a natural end of turn. Any
// other stop reason keeps the multi-turn loop going until the turn budget
// is exhausted.
const StopEndTurn = "end_turn"

// DefaultMaxOutputTokens is the per-call output ceiling sent to the backend
const DefaultMaxOutputTokens = 4096

// CompletionRequest is one "complete a turn" call to a generative backend
type CompletionRequest struct {
	Model     string                   `json:"model"`
	System    string                   `json:"system,omitempty"`
	Messages  []checkpoint.WireMessage `json:"messages"`
	MaxTokens int                      `json:"max_tokens"`
}

// ContentBlock is one unit of backend response content. The executor only
// consumes text blocks; other kinds pass through untouched.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is the token accounting reported by one completion call
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// CompletionResponse is the backend's answer to a completion request
type CompletionResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Backend is the single capability the executor needs from a generative
// text service. Implementations must be safe for concurrent use: branches
// run in parallel against one shared backend.
type Backend interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
