// internal/archive/archive.go
package archive

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"replaylab/internal/replay"
)

// DefaultPath returns the default conversation archive location
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "superpowers", "conversation-archive")
}

// Archive reads recorded conversations from a directory tree of
// {project}/{session_id}.jsonl files. The root not existing is not an
// error: listings come back empty and lookups return nil.
type Archive struct {
	root string
}

// New creates an Archive rooted at the given directory
func New(root string) *Archive {
	return &Archive{root: root}
}

// Root returns the archive root directory
func (a *Archive) Root() string {
	return a.root
}

// ConversationInfo is listing metadata for one recorded conversation
type ConversationInfo struct {
	SessionID     string    `json:"session_id"`
	ProjectPath   string    `json:"project_path"`
	FilePath      string    `json:"file_path"`
	MessageCount  int       `json:"message_count"`
	LastTimestamp string    `json:"last_timestamp,omitempty"`
	Modified      time.Time `json:"modified"`
}

// isSessionFile reports whether a directory entry looks like a session log
func isSessionFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".jsonl.zst")
}

// List returns conversation metadata, most recently modified first.
// projectFilter, when non-empty, matches as a substring of the project
// directory name. limit <= 0 means no limit.
func (a *Archive) List(projectFilter string, limit int) ([]ConversationInfo, error) {
	var infos []ConversationInfo

	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return infos, nil
		}
		return nil, err
	}

	for _, project := range entries {
		if !project.IsDir() {
			continue
		}
		if projectFilter != "" && !strings.Contains(project.Name(), projectFilter) {
			continue
		}

		projectDir := filepath.Join(a.root, project.Name())
		files, err := os.ReadDir(projectDir)
		if err != nil {
			continue
		}

		for _, file := range files {
			if file.IsDir() || !isSessionFile(file.Name()) {
				continue
			}

			path := filepath.Join(projectDir, file.Name())
			info := ConversationInfo{
				SessionID:   fileStem(path),
				ProjectPath: project.Name(),
				FilePath:    path,
			}
			if stat, err := file.Info(); err == nil {
				info.Modified = stat.ModTime()
			}
			info.MessageCount, info.LastTimestamp = scanSessionMeta(path)

			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})

	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// scanSessionMeta counts conversational messages in a session file and
// picks up the last record timestamp. Unreadable files report zero.
func scanSessionMeta(path string) (count int, lastTimestamp string) {
	r, err := openSessionFile(path)
	if err != nil {
		return 0, ""
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024 // 1MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Timestamp != "" {
			lastTimestamp = rec.Timestamp
		}
		if parseRecord(&rec) != nil {
			count++
		}
	}
	return count, lastTimestamp
}

// Load finds a conversation by session ID anywhere under the archive root.
// Returns nil when the session (or the archive itself) does not exist, or
// when the log contains no conversational messages.
func (a *Archive) Load(sessionID string) (*replay.Conversation, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, project := range entries {
		if !project.IsDir() {
			continue
		}
		for _, candidate := range []string{sessionID + ".jsonl", sessionID + ".jsonl.zst"} {
			path := filepath.Join(a.root, project.Name(), candidate)
			if _, err := os.Stat(path); err == nil {
				return a.LoadFromPath(path)
			}
		}
	}
	return nil, nil
}

// LoadFromPath loads a conversation from a specific session file. The
// project path is taken from the parent directory name.
func (a *Archive) LoadFromPath(path string) (*replay.Conversation, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	conv, err := parseSessionFile(path, filepath.Base(filepath.Dir(path)))
	if err != nil {
		return nil, err
	}
	// Empty logs never surface as conversations
	if conv.StepCount() == 0 {
		return nil, nil
	}
	return conv, nil
}
