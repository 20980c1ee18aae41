// internal/runner/scheduler.go
package runner

import (
	"context"

	"replaylab/internal/replay"
)

// Scheduler dispatches N independent branch executions and collects exactly
// N results. Implementations must tolerate any subset of branches failing:
// a failed branch is represented in the returned slice, never omitted, and
// must never abort or block its siblings. Results are positionally aligned
// with the input branch configs.
type Scheduler interface {
	// Name identifies the scheduler in run records and CLI output
	Name() string

	// Schedule executes every branch from the checkpoint and returns one
	// result per configured branch
	Schedule(ctx context.Context, runID string, cp *replay.Checkpoint, branches []replay.BranchConfig) []replay.BranchResult
}
