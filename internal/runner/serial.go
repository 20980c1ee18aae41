// internal/runner/serial.go
package runner

import (
	"context"
	"time"

	"replaylab/internal/executor"
	"replaylab/internal/replay"
)

// Serial executes branches one after another in config order. Slower than
// Parallel but fully deterministic, which makes it the right choice for
// reproducing a run or debugging a single branch.
type Serial struct {
	backend       executor.Backend
	branchTimeout time.Duration
}

// NewSerial creates a sequential scheduler
func NewSerial(backend executor.Backend, branchTimeout time.Duration) *Serial {
	return &Serial{backend: backend, branchTimeout: branchTimeout}
}

func (s *Serial) Name() string { return "serial" }

func (s *Serial) Schedule(ctx context.Context, runID string, cp *replay.Checkpoint, branches []replay.BranchConfig) []replay.BranchResult {
	results := make([]replay.BranchResult, len(branches))

	for i, cfg := range branches {
		branchCtx := ctx
		if s.branchTimeout > 0 {
			var cancel context.CancelFunc
			branchCtx, cancel = context.WithTimeout(ctx, s.branchTimeout)
			results[i] = executor.ExecuteBranch(branchCtx, cp, cfg, s.backend)
			cancel()
			continue
		}
		results[i] = executor.ExecuteBranch(branchCtx, cp, cfg, s.backend)
	}

	return results
}

var _ Scheduler = (*Serial)(nil)
