// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"replaylab/internal/checkpoint"
	"replaylab/internal/replay"
)

const defaultMaxTurns = 5

// timeoutError is the fixed message recorded on timeout-classified failures
const timeoutError = "execution timed out"

// ExecuteBranch drives one bounded multi-turn continuation of a checkpoint
// against the backend. Execution failures never escape: timeouts and
// backend errors are folded into the returned BranchResult, and whatever
// messages and duration accumulated before a failure are preserved.
func ExecuteBranch(ctx context.Context, cp *replay.Checkpoint, cfg replay.BranchConfig, backend Backend) replay.BranchResult {
	start := time.Now()

	wire := checkpoint.ToWireMessages(cp)
	var newMessages []replay.Message

	if cfg.InjectMessage != "" {
		wire = append(wire, checkpoint.WireMessage{Role: replay.RoleUser, Content: cfg.InjectMessage})
		newMessages = append(newMessages, replay.Message{
			Role:    replay.RoleUser,
			Content: cfg.InjectMessage,
		})
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	var totalInput, totalOutput int64

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := backend.Complete(ctx, &CompletionRequest{
			Model:     cfg.Model,
			System:    cfg.SystemPrompt,
			Messages:  wire,
			MaxTokens: DefaultMaxOutputTokens,
		})
		if err != nil {
			return failedResult(cfg, newMessages, start, err)
		}

		totalInput += resp.Usage.InputTokens
		totalOutput += resp.Usage.OutputTokens

		content := extractText(resp.Content)

		assistantMsg := replay.Message{
			Role:    replay.RoleAssistant,
			Content: content,
		}
		newMessages = append(newMessages, assistantMsg)
		wire = append(wire, checkpoint.WireMessage{Role: replay.RoleAssistant, Content: content})

		if resp.StopReason == StopEndTurn {
			break
		}
	}

	return replay.BranchResult{
		BranchName: cfg.Name,
		Config:     cfg,
		Messages:   newMessages,
		DurationMs: time.Since(start).Milliseconds(),
		TokenUsage: &replay.TokenUsage{
			InputTokens:  totalInput,
			OutputTokens: totalOutput,
			TotalTokens:  totalInput + totalOutput,
		},
		Status: replay.StatusSuccess,
	}
}

// extractText concatenates response text blocks in order
func extractText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// failedResult classifies a backend failure into timeout vs error
func failedResult(cfg replay.BranchConfig, messages []replay.Message, start time.Time, err error) replay.BranchResult {
	result := replay.BranchResult{
		BranchName: cfg.Name,
		Config:     cfg,
		Messages:   messages,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if isTimeout(err) {
		result.Status = replay.StatusTimeout
		result.Error = timeoutError
	} else {
		result.Status = replay.StatusError
		result.Error = err.Error()
	}
	return result
}

// isTimeout reports whether an error is timeout-classified: a context
// deadline, an I/O deadline, or a timing-out network error anywhere in the
// chain
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
