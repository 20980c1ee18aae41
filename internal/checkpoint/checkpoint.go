// internal/checkpoint/checkpoint.go
package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"replaylab/internal/replay"
)

// OutOfBoundsError reports a checkpoint step outside the conversation's
// valid range. Steps are 1-indexed and inclusive.
type OutOfBoundsError struct {
	Step      int
	StepCount int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("step %d is out of bounds: conversation has %d steps (valid range 1-%d)",
		e.Step, e.StepCount, e.StepCount)
}

// Create builds an immutable checkpoint from the first step messages of the
// conversation. The prefix is deep-copied so later mutation of the source
// conversation cannot corrupt an issued checkpoint.
func Create(conv *replay.Conversation, step int) (*replay.Checkpoint, error) {
	if step < 1 || step > conv.StepCount() {
		return nil, &OutOfBoundsError{Step: step, StepCount: conv.StepCount()}
	}

	truncated := conv.AtStep(step)

	return &replay.Checkpoint{
		ConversationID: conv.SessionID,
		Step:           step,
		Messages:       copyMessages(truncated.Messages),
		ProjectPath:    conv.ProjectPath,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func copyMessages(msgs []replay.Message) []replay.Message {
	out := make([]replay.Message, len(msgs))
	for i, m := range msgs {
		out[i] = copyMessage(m)
	}
	return out
}

func copyMessage(m replay.Message) replay.Message {
	c := m
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = make([]replay.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Input != nil {
				input := make(map[string]any, len(tc.Input))
				for k, v := range tc.Input {
					input[k] = v
				}
				c.ToolCalls[i].Input = input
			}
		}
	}
	if len(m.ToolResults) > 0 {
		c.ToolResults = make([]replay.ToolResult, len(m.ToolResults))
		copy(c.ToolResults, m.ToolResults)
	}
	return c
}

// WireMessage is the backend-facing shape of one turn. Content is either a
// plain string or an ordered block list.
type WireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// WireTextBlock carries plain text inside a structured wire message
type WireTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WireToolUseBlock carries a tool call on an assistant wire message
type WireToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// WireToolResultBlock carries a tool result on a user wire message
type WireToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ToWireMessages renders a checkpoint into the wire format the completion
// backend expects. Messages without tool records stay plain strings; never
// a one-element block list. Tool calls are only emitted on assistant turns
// and tool results only on user turns; that gating is the backend's
// calling convention.
func ToWireMessages(cp *replay.Checkpoint) []WireMessage {
	wire := make([]WireMessage, 0, len(cp.Messages))

	for _, msg := range cp.Messages {
		if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
			wire = append(wire, WireMessage{Role: msg.Role, Content: msg.Content})
			continue
		}

		var blocks []any
		if strings.TrimSpace(msg.Content) != "" {
			blocks = append(blocks, WireTextBlock{Type: "text", Text: msg.Content})
		}
		if msg.Role == replay.RoleAssistant {
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, WireToolUseBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Input,
				})
			}
		}
		if msg.Role == replay.RoleUser {
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, WireToolResultBlock{
					Type:      "tool_result",
					ToolUseID: tr.ToolCallID,
					Content:   tr.Output,
					IsError:   tr.IsError,
				})
			}
		}

		wire = append(wire, WireMessage{Role: msg.Role, Content: blocks})
	}

	return wire
}
