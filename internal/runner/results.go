// internal/runner/results.go
package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"replaylab/internal/compare"
	"replaylab/internal/replay"
)

// WriteResults persists one run's artifacts under outputDir/run-<id>/:
// result.json (the full comparison), report.md (the rendered table) and
// transcripts.jsonl.zst (per-branch new messages, compressed). Returns the
// run directory.
func WriteResults(outputDir, runID string, comparison *replay.ComparisonResult) (string, error) {
	dir := filepath.Join(outputDir, "run-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	resultJSON, err := json.MarshalIndent(comparison, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), resultJSON, 0644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}

	report := compare.FormatMarkdown(comparison)
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(report), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	if err := writeTranscripts(filepath.Join(dir, "transcripts.jsonl.zst"), comparison.Branches); err != nil {
		return "", err
	}

	return dir, nil
}

// branchTranscript is one line of the compressed transcript file
type branchTranscript struct {
	Branch   string           `json:"branch"`
	Status   string           `json:"status"`
	Messages []replay.Message `json:"messages"`
}

func writeTranscripts(path string, branches []replay.BranchResult) error {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	defer encoder.Close()

	var lines []byte
	for _, b := range branches {
		line, err := json.Marshal(branchTranscript{
			Branch:   b.BranchName,
			Status:   b.Status,
			Messages: b.Messages,
		})
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		lines = append(lines, line...)
		lines = append(lines, '\n')
	}

	compressed := encoder.EncodeAll(lines, nil)
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return fmt.Errorf("write transcripts: %w", err)
	}
	return nil
}
