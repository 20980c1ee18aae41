// internal/runner/runner.go
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"replaylab/internal/archive"
	"replaylab/internal/checkpoint"
	"replaylab/internal/compare"
	"replaylab/internal/config"
	"replaylab/internal/replay"
	"replaylab/internal/runstore"
)

// Runner wires the whole replay pipeline together: load the conversation,
// cut the checkpoint, fan the branches out through a scheduler, aggregate,
// and optionally persist. The core packages it calls into know nothing
// about which scheduler is in use.
type Runner struct {
	archive   *archive.Archive
	scheduler Scheduler
	store     *runstore.Store
	settings  config.Settings
}

// Result is the outcome of one replay run
type Result struct {
	RunID      string                   `json:"run_id"`
	Comparison *replay.ComparisonResult `json:"comparison"`
	OutputDir  string                   `json:"output_dir,omitempty"`
}

// New creates a Runner. store may be nil when run tracking is not wanted.
func New(a *archive.Archive, scheduler Scheduler, store *runstore.Store, settings config.Settings) *Runner {
	return &Runner{
		archive:   a,
		scheduler: scheduler,
		store:     store,
		settings:  settings,
	}
}

// Run executes a full replay request. Per-branch failures never fail the
// run: a result set with failed branches is still a complete, displayable
// outcome. Only contract violations (missing conversation, out-of-bounds
// fork step) come back as errors.
func (r *Runner) Run(ctx context.Context, req replay.ReplayRequest) (*Result, error) {
	start := time.Now()

	conv, err := r.archive.Load(req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation not found: %s", req.ConversationID)
	}

	cp, err := checkpoint.Create(conv, req.ForkAtStep)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log.Printf("[Runner] run %s: forking %s at step %d into %d branches via %s",
		runID, req.ConversationID, req.ForkAtStep, len(req.Branches), r.scheduler.Name())

	if r.store != nil {
		if err := r.store.CreateRun(&runstore.Run{
			ID:             runID,
			ConversationID: req.ConversationID,
			ForkStep:       req.ForkAtStep,
			Scheduler:      r.scheduler.Name(),
			Status:         runstore.RunRunning,
			BranchCount:    len(req.Branches),
		}); err != nil {
			return nil, fmt.Errorf("create run record: %w", err)
		}
	}

	results := r.scheduler.Schedule(ctx, runID, cp, req.Branches)

	comparison := &replay.ComparisonResult{
		Request:           req,
		Checkpoint:        cp,
		Branches:          results,
		TotalDurationMs:   time.Since(start).Milliseconds(),
		ComparisonSummary: compare.CompareBranches(results),
	}

	if r.store != nil {
		if err := r.store.CompleteRun(runID, runstore.RunCompleted, comparison); err != nil {
			log.Printf("[Runner] run %s: failed to store result: %v", runID, err)
		}
	}

	out := &Result{RunID: runID, Comparison: comparison}

	if r.settings.SaveResults && r.settings.OutputDir != "" {
		dir, err := WriteResults(r.settings.OutputDir, runID, comparison)
		if err != nil {
			log.Printf("[Runner] run %s: failed to write results: %v", runID, err)
		} else {
			out.OutputDir = dir
		}
	}

	return out, nil
}
