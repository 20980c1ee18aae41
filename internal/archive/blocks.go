// internal/archive/blocks.go
package archive

import (
	"encoding/json"
	"strings"
)

// Block is one tagged unit inside a structured message content list.
// Unrecognized block kinds (thinking, images, ...) are dropped at decode
// time rather than carried as raw maps.
type Block interface {
	blockKind() string
}

// TextBlock contributes to the flattened text content
type TextBlock struct {
	Text string
}

func (TextBlock) blockKind() string { return "text" }

// ToolUseBlock is a tool invocation embedded in an assistant turn
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) blockKind() string { return "tool_use" }

// ToolResultBlock is a tool output embedded in a user turn. Content keeps
// the raw JSON because the nested shape varies (string or block list).
type ToolResultBlock struct {
	ToolUseID string
	Content   json.RawMessage
	IsError   bool
}

func (ToolResultBlock) blockKind() string { return "tool_result" }

// rawBlock is the on-disk superset shape used for decoding
type rawBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// decodeBlocks parses a content-block list, keeping only recognized kinds
func decodeBlocks(data json.RawMessage) []Block {
	var raws []rawBlock
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil
	}

	var blocks []Block
	for _, r := range raws {
		switch r.Type {
		case "text":
			blocks = append(blocks, TextBlock{Text: r.Text})
		case "tool_use":
			blocks = append(blocks, ToolUseBlock{ID: r.ID, Name: r.Name, Input: r.Input})
		case "tool_result":
			blocks = append(blocks, ToolResultBlock{ToolUseID: r.ToolUseID, Content: r.Content, IsError: r.IsError})
		default:
			// Unrecognized block kind: dropped entirely
		}
	}
	return blocks
}

// flattenContent turns a message content value into plain text. Content is
// either a plain JSON string or a block list; only text blocks contribute,
// joined by newline. Tool-result nested content is flattened the same way.
func flattenContent(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}

	var parts []string
	for _, b := range decodeBlocks(data) {
		if tb, ok := b.(TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}
