// internal/runner/durable.go
package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"replaylab/internal/executor"
	"replaylab/internal/replay"
	"replaylab/internal/runstore"
)

// RetryPolicy bounds the durable scheduler's per-branch retries
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy mirrors the retry budget the external orchestration
// systems were configured with
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Durable runs branches in parallel like Parallel, but retries failed
// branches under a bounded policy and records every attempt in the run
// store. The final result per branch is the last attempt, success or not;
// the result slice always has one entry per configured branch.
type Durable struct {
	backend       executor.Backend
	store         *runstore.Store
	policy        RetryPolicy
	branchTimeout time.Duration
}

// NewDurable creates a retrying, run-store-backed scheduler
func NewDurable(backend executor.Backend, store *runstore.Store, policy RetryPolicy, branchTimeout time.Duration) *Durable {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Durable{backend: backend, store: store, policy: policy, branchTimeout: branchTimeout}
}

func (d *Durable) Name() string { return "durable" }

func (d *Durable) Schedule(ctx context.Context, runID string, cp *replay.Checkpoint, branches []replay.BranchConfig) []replay.BranchResult {
	results := make([]replay.BranchResult, len(branches))

	var wg sync.WaitGroup
	for i, cfg := range branches {
		wg.Add(1)
		go func(i int, cfg replay.BranchConfig) {
			defer wg.Done()
			results[i] = d.runBranch(ctx, runID, cp, cfg)
		}(i, cfg)
	}
	wg.Wait()

	return results
}

// runBranch executes one branch with retries. A timeout consumes the whole
// branch budget, so it is terminal; only error-classified failures retry.
func (d *Durable) runBranch(ctx context.Context, runID string, cp *replay.Checkpoint, cfg replay.BranchConfig) replay.BranchResult {
	var result replay.BranchResult

	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		branchCtx := ctx
		if d.branchTimeout > 0 {
			var cancel context.CancelFunc
			branchCtx, cancel = context.WithTimeout(ctx, d.branchTimeout)
			result = executor.ExecuteBranch(branchCtx, cp, cfg, d.backend)
			cancel()
		} else {
			result = executor.ExecuteBranch(branchCtx, cp, cfg, d.backend)
		}

		if d.store != nil {
			if err := d.store.RecordAttempt(runID, attempt, &result); err != nil {
				log.Printf("[Durable] failed to record attempt %d for branch %s: %v", attempt, cfg.Name, err)
			}
		}

		if result.Status != replay.StatusError {
			break
		}
		if attempt < d.policy.MaxAttempts {
			log.Printf("[Durable] branch %s attempt %d failed, retrying: %s", cfg.Name, attempt, result.Error)
			select {
			case <-time.After(d.policy.Delay):
			case <-ctx.Done():
				return result
			}
		}
	}

	return result
}

var _ Scheduler = (*Durable)(nil)
