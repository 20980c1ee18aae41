// internal/usage/stats.go
package usage

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is a single assistant-turn usage record extracted from an
// archived session file.
type Entry struct {
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	ProjectPath  string    `json:"project_path"`
}

// ModelStats aggregates token counts for one model across the archive
type ModelStats struct {
	Model             string `json:"model"`
	TotalTokens       int64  `json:"total_tokens"`
	TotalInputTokens  int64  `json:"total_input_tokens"`
	TotalOutputTokens int64  `json:"total_output_tokens"`
	SessionCount      int    `json:"session_count"`
}

// SessionStats aggregates token counts for one session
type SessionStats struct {
	SessionID    string    `json:"session_id"`
	ProjectPath  string    `json:"project_path,omitempty"`
	Model        string    `json:"model"`
	TotalTokens  int64     `json:"total_tokens"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TurnCount    int       `json:"turn_count"`
	LastActivity time.Time `json:"last_activity"`
}

// OverallStats is the archive-wide rollup
type OverallStats struct {
	TotalTokens       int64         `json:"total_tokens"`
	TotalInputTokens  int64         `json:"total_input_tokens"`
	TotalOutputTokens int64         `json:"total_output_tokens"`
	TotalSessions     int           `json:"total_sessions"`
	ByModel           []*ModelStats `json:"by_model"`
}

// Collector reads token usage out of the conversation archive. Usage is
// reported by the generating service on assistant records, so only those
// lines contribute; user records and malformed lines are skipped.
type Collector struct {
	archiveDir string
}

// NewCollector creates a collector rooted at the archive directory
func NewCollector(archiveDir string) *Collector {
	return &Collector{archiveDir: archiveDir}
}

// parseLine extracts a usage entry from one archived record. Returns nil
// when the line carries no usage data.
func parseLine(line string) *Entry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil
	}

	entry := &Entry{}

	if msg, ok := raw["message"].(map[string]interface{}); ok {
		if model, ok := msg["model"].(string); ok {
			entry.Model = model
		}
		if u, ok := msg["usage"].(map[string]interface{}); ok {
			if v, ok := u["input_tokens"].(float64); ok {
				entry.InputTokens = int64(v)
			}
			if v, ok := u["output_tokens"].(float64); ok {
				entry.OutputTokens = int64(v)
			}
		}
	}

	if ts, ok := raw["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	if sessionID, ok := raw["sessionId"].(string); ok {
		entry.SessionID = sessionID
	}

	if entry.Model == "" || (entry.InputTokens == 0 && entry.OutputTokens == 0) {
		return nil
	}
	return entry
}

// scanFile scans one session file and extracts its usage entries
func (c *Collector) scanFile(path, projectPath string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		reader = dec
	}

	var entries []*Entry
	scanner := bufio.NewScanner(reader)

	const maxCapacity = 1024 * 1024 // 1MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry := parseLine(line)
		if entry == nil {
			continue
		}
		if entry.SessionID == "" {
			entry.SessionID = sessionIDFromPath(path)
		}
		entry.ProjectPath = projectPath
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func sessionIDFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, ".jsonl")
}

// scanArchive walks every project directory under the archive root
func (c *Collector) scanArchive() ([]*Entry, error) {
	if _, err := os.Stat(c.archiveDir); os.IsNotExist(err) {
		return []*Entry{}, nil
	}

	var all []*Entry
	err := filepath.Walk(c.archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") && !strings.HasSuffix(path, ".jsonl.zst") {
			return nil
		}
		projectPath := filepath.Base(filepath.Dir(path))
		entries, err := c.scanFile(path, projectPath)
		if err != nil {
			return nil
		}
		all = append(all, entries...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return all, nil
}

// CollectStats aggregates usage across the whole archive
func (c *Collector) CollectStats() (*OverallStats, error) {
	entries, err := c.scanArchive()
	if err != nil {
		return nil, err
	}
	return aggregate(entries), nil
}

func aggregate(entries []*Entry) *OverallStats {
	stats := &OverallStats{ByModel: make([]*ModelStats, 0)}
	if len(entries) == 0 {
		return stats
	}

	modelMap := make(map[string]*ModelStats)
	sessionsByModel := make(map[string]map[string]bool)
	allSessions := make(map[string]bool)

	for _, entry := range entries {
		total := entry.InputTokens + entry.OutputTokens
		stats.TotalTokens += total
		stats.TotalInputTokens += entry.InputTokens
		stats.TotalOutputTokens += entry.OutputTokens

		ms, ok := modelMap[entry.Model]
		if !ok {
			ms = &ModelStats{Model: entry.Model}
			modelMap[entry.Model] = ms
			sessionsByModel[entry.Model] = make(map[string]bool)
		}
		ms.TotalTokens += total
		ms.TotalInputTokens += entry.InputTokens
		ms.TotalOutputTokens += entry.OutputTokens

		if entry.SessionID != "" {
			sessionsByModel[entry.Model][entry.SessionID] = true
			allSessions[entry.SessionID] = true
		}
	}

	for model, ms := range modelMap {
		ms.SessionCount = len(sessionsByModel[model])
		stats.ByModel = append(stats.ByModel, ms)
	}
	stats.TotalSessions = len(allSessions)

	sort.Slice(stats.ByModel, func(i, j int) bool {
		return stats.ByModel[i].TotalTokens > stats.ByModel[j].TotalTokens
	})

	return stats
}

// CollectSessionStats aggregates per-session usage, most recent first
func (c *Collector) CollectSessionStats() ([]*SessionStats, error) {
	entries, err := c.scanArchive()
	if err != nil {
		return nil, err
	}

	sessionMap := make(map[string]*SessionStats)
	for _, entry := range entries {
		if entry.SessionID == "" {
			continue
		}
		ss, ok := sessionMap[entry.SessionID]
		if !ok {
			ss = &SessionStats{
				SessionID:    entry.SessionID,
				ProjectPath:  entry.ProjectPath,
				Model:        entry.Model,
				LastActivity: entry.Timestamp,
			}
			sessionMap[entry.SessionID] = ss
		}
		ss.TotalTokens += entry.InputTokens + entry.OutputTokens
		ss.InputTokens += entry.InputTokens
		ss.OutputTokens += entry.OutputTokens
		ss.TurnCount++
		if ss.Model == "" && entry.Model != "" {
			ss.Model = entry.Model
		}
		if entry.Timestamp.After(ss.LastActivity) {
			ss.LastActivity = entry.Timestamp
		}
	}

	var sessions []*SessionStats
	for _, ss := range sessionMap {
		sessions = append(sessions, ss)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})

	return sessions, nil
}
