// internal/runner/runner_test.go
package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"replaylab/internal/archive"
	"replaylab/internal/config"
	"replaylab/internal/replay"
	"replaylab/internal/runstore"
)

func seedRunnerArchive(t *testing.T) *archive.Archive {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "project-alpha")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	content := `{"type":"user","sessionId":"sess-run","timestamp":"2025-01-01T10:00:00Z","message":{"role":"user","content":"original question"}}
{"type":"assistant","sessionId":"sess-run","timestamp":"2025-01-01T10:00:05Z","message":{"role":"assistant","content":"original answer"}}
`
	if err := os.WriteFile(filepath.Join(dir, "sess-run.jsonl"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write session file: %v", err)
	}
	return archive.New(root)
}

func TestRunnerEndToEnd(t *testing.T) {
	a := seedRunnerArchive(t)

	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	outputDir := t.TempDir()
	settings := config.Settings{
		MaxTurns:       5,
		TimeoutSeconds: 30,
		SaveResults:    true,
		OutputDir:      outputDir,
	}

	backend := &countingBackend{}
	r := New(a, NewSerial(backend, 0), store, settings)

	result, err := r.Run(context.Background(), replay.ReplayRequest{
		ConversationID: "sess-run",
		ForkAtStep:     1,
		Branches: []replay.BranchConfig{
			{Name: "alt-1", Model: "model-a", InjectMessage: "try again", MaxTurns: 1},
			{Name: "alt-2", Model: "model-b", MaxTurns: 1},
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(result.Comparison.Branches) != 2 {
		t.Fatalf("expected 2 branch results, got %d", len(result.Comparison.Branches))
	}
	if result.Comparison.Checkpoint.Step != 1 {
		t.Errorf("unexpected checkpoint step: %d", result.Comparison.Checkpoint.Step)
	}
	summary := result.Comparison.ComparisonSummary
	if summary == nil || summary.Successful != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	// Run is recorded and its result is retrievable
	run, err := store.GetRun(result.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != runstore.RunCompleted {
		t.Errorf("unexpected stored run: %+v", run)
	}
	stored, err := store.GetRunResult(result.RunID)
	if err != nil {
		t.Fatalf("GetRunResult failed: %v", err)
	}
	if stored == nil || len(stored.Branches) != 2 {
		t.Errorf("stored result mismatch: %+v", stored)
	}

	// Artifacts land under the output directory
	if result.OutputDir == "" {
		t.Fatal("expected output dir on result")
	}
	for _, name := range []string{"result.json", "report.md", "transcripts.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(result.OutputDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
}

func TestRunnerThreePairConversationThreeBranches(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "project-e2e")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	var lines strings.Builder
	for i := 1; i <= 3; i++ {
		lines.WriteString(`{"type":"user","sessionId":"sess-e2e","message":{"role":"user","content":"question ` + string(rune('0'+i)) + `"}}` + "\n")
		lines.WriteString(`{"type":"assistant","sessionId":"sess-e2e","message":{"role":"assistant","content":"answer ` + string(rune('0'+i)) + `"}}` + "\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "sess-e2e.jsonl"), []byte(lines.String()), 0644); err != nil {
		t.Fatalf("failed to write session file: %v", err)
	}

	a := archive.New(root)

	infos, err := a.List("", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 1 || infos[0].MessageCount != 6 {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	settings := config.DefaultSettings()
	settings.SaveResults = false
	r := New(a, NewParallel(&countingBackend{}, 0), nil, settings)

	result, err := r.Run(context.Background(), replay.ReplayRequest{
		ConversationID: "sess-e2e",
		ForkAtStep:     5,
		Branches: []replay.BranchConfig{
			{Name: "b1", Model: "model-1", MaxTurns: 1},
			{Name: "b2", Model: "model-2", MaxTurns: 1},
			{Name: "b3", Model: "model-3", MaxTurns: 1},
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Comparison.Checkpoint.Messages) != 5 {
		t.Errorf("expected 5 checkpoint messages, got %d", len(result.Comparison.Checkpoint.Messages))
	}
	if len(result.Comparison.Branches) != 3 {
		t.Fatalf("expected 3 branch results, got %d", len(result.Comparison.Branches))
	}
	if result.Comparison.ComparisonSummary.Successful != 3 {
		t.Errorf("expected 3 successes, got %d", result.Comparison.ComparisonSummary.Successful)
	}
}

func TestRunnerMissingConversation(t *testing.T) {
	a := seedRunnerArchive(t)
	r := New(a, NewSerial(&countingBackend{}, 0), nil, config.DefaultSettings())

	_, err := r.Run(context.Background(), replay.ReplayRequest{
		ConversationID: "no-such-session",
		ForkAtStep:     1,
		Branches:       []replay.BranchConfig{{Name: "b", Model: "m", MaxTurns: 1}},
	})
	if err == nil {
		t.Fatal("expected error for missing conversation")
	}
	if !strings.Contains(err.Error(), "conversation not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunnerOutOfBoundsStep(t *testing.T) {
	a := seedRunnerArchive(t)
	r := New(a, NewSerial(&countingBackend{}, 0), nil, config.DefaultSettings())

	_, err := r.Run(context.Background(), replay.ReplayRequest{
		ConversationID: "sess-run",
		ForkAtStep:     99,
		Branches:       []replay.BranchConfig{{Name: "b", Model: "m", MaxTurns: 1}},
	})
	if err == nil {
		t.Fatal("expected out-of-bounds error")
	}
	if !strings.Contains(err.Error(), "out of bounds") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWriteResultsArtifacts(t *testing.T) {
	outputDir := t.TempDir()

	comparison := &replay.ComparisonResult{
		Request:    replay.ReplayRequest{ConversationID: "sess-1", ForkAtStep: 2},
		Checkpoint: &replay.Checkpoint{ConversationID: "sess-1", Step: 2},
		Branches: []replay.BranchResult{
			{
				BranchName: "only",
				Status:     replay.StatusSuccess,
				Messages:   []replay.Message{{Role: replay.RoleAssistant, Content: "branch output"}},
			},
		},
	}

	dir, err := WriteResults(outputDir, "abc123", comparison)
	if err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}
	if filepath.Base(dir) != "run-abc123" {
		t.Errorf("unexpected run directory: %s", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatalf("failed to read result.json: %v", err)
	}
	var decoded replay.ComparisonResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("result.json is not valid JSON: %v", err)
	}
	if decoded.Checkpoint.ConversationID != "sess-1" {
		t.Errorf("result.json round trip mismatch: %+v", decoded.Checkpoint)
	}

	report, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		t.Fatalf("failed to read report.md: %v", err)
	}
	if !strings.Contains(string(report), "# Fork & Compare Results") {
		t.Errorf("unexpected report content:\n%s", report)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "transcripts.jsonl.zst"))
	if err != nil {
		t.Fatalf("failed to read transcripts: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("failed to decompress transcripts: %v", err)
	}
	if !strings.Contains(string(raw), `"branch":"only"`) {
		t.Errorf("unexpected transcript content: %s", raw)
	}
}
