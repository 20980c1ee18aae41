// internal/archive/reader.go
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"replaylab/internal/replay"
)

// record is one line of a session JSONL file. Only the fields named here
// are interpreted; everything else is noise.
type record struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Timestamp string         `json:"timestamp"`
	Message   *recordMessage `json:"message"`
}

type recordMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// openSessionFile opens a session file, transparently decompressing
// zstd-compressed archives (*.jsonl.zst)
func openSessionFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	return &zstdReadCloser{dec: dec, file: f}, nil
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}

// parseSessionFile parses a JSONL session file into a Conversation.
// Malformed lines are skipped, never fatal. The session ID comes from the
// first record carrying one, falling back to the file stem.
func parseSessionFile(path, projectPath string) (*replay.Conversation, error) {
	r, err := openSessionFile(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)

	// Session lines can carry large embedded tool output
	const maxCapacity = 1024 * 1024 // 1MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	var messages []replay.Message
	sessionID := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Skip malformed lines but continue processing
			continue
		}

		if sessionID == "" && rec.SessionID != "" {
			sessionID = rec.SessionID
		}

		if msg := parseRecord(&rec); msg != nil {
			messages = append(messages, *msg)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}

	if sessionID == "" {
		sessionID = fileStem(path)
	}

	return &replay.Conversation{
		SessionID:   sessionID,
		ProjectPath: projectPath,
		Messages:    messages,
	}, nil
}

// parseRecord turns one JSONL record into a Message, or nil when the record
// is not a conversational turn. Both the outer type and the inner role must
// be user/assistant; the tags are not always consistent in the wild.
func parseRecord(rec *record) *replay.Message {
	if rec.Type != replay.RoleUser && rec.Type != replay.RoleAssistant {
		return nil
	}
	if rec.Message == nil {
		return nil
	}
	role := rec.Message.Role
	if role != replay.RoleUser && role != replay.RoleAssistant {
		return nil
	}

	msg := replay.Message{
		Role:      role,
		Timestamp: rec.Timestamp,
	}

	var s string
	if err := json.Unmarshal(rec.Message.Content, &s); err == nil {
		msg.Content = s
	} else {
		var parts []string
		for _, b := range decodeBlocks(rec.Message.Content) {
			switch blk := b.(type) {
			case TextBlock:
				parts = append(parts, blk.Text)
			case ToolUseBlock:
				msg.ToolCalls = append(msg.ToolCalls, replay.ToolCall{
					ID:    blk.ID,
					Name:  blk.Name,
					Input: blk.Input,
				})
			case ToolResultBlock:
				msg.ToolResults = append(msg.ToolResults, replay.ToolResult{
					ToolCallID: blk.ToolUseID,
					Output:     flattenContent(blk.Content),
					IsError:    blk.IsError,
				})
			}
		}
		msg.Content = strings.Join(parts, "\n")
	}

	// Messages with blank flattened text are dropped even when they carry
	// tool records. Checkpoint step indices depend on this rule staying
	// stable.
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	return &msg
}

// fileStem returns the base name without .jsonl/.jsonl.zst extensions
func fileStem(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".jsonl")
	return name
}
