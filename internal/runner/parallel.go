// internal/runner/parallel.go
package runner

import (
	"context"
	"sync"
	"time"

	"replaylab/internal/executor"
	"replaylab/internal/replay"
)

// Parallel fans branches out onto goroutines, one per branch, each with its
// own timeout context. Branches share nothing but the backend client, which
// must be concurrency-safe; each goroutine writes only its own result slot.
type Parallel struct {
	backend       executor.Backend
	branchTimeout time.Duration
}

// NewParallel creates a parallel scheduler. branchTimeout bounds each
// branch's total execution; zero means no per-branch deadline.
func NewParallel(backend executor.Backend, branchTimeout time.Duration) *Parallel {
	return &Parallel{backend: backend, branchTimeout: branchTimeout}
}

func (p *Parallel) Name() string { return "parallel" }

func (p *Parallel) Schedule(ctx context.Context, runID string, cp *replay.Checkpoint, branches []replay.BranchConfig) []replay.BranchResult {
	results := make([]replay.BranchResult, len(branches))

	var wg sync.WaitGroup
	for i, cfg := range branches {
		wg.Add(1)
		go func(i int, cfg replay.BranchConfig) {
			defer wg.Done()

			branchCtx := ctx
			if p.branchTimeout > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(ctx, p.branchTimeout)
				defer cancel()
			}

			results[i] = executor.ExecuteBranch(branchCtx, cp, cfg, p.backend)
		}(i, cfg)
	}
	wg.Wait()

	return results
}

var _ Scheduler = (*Parallel)(nil)
