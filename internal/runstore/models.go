// internal/runstore/models.go
package runstore

import "time"

// Run statuses
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is the persisted record of one replay run
type Run struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	ForkStep       int        `json:"fork_step"`
	Scheduler      string     `json:"scheduler"`
	Status         string     `json:"status"`
	BranchCount    int        `json:"branch_count"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// BranchAttempt is one execution attempt of one branch within a run.
// Retrying schedulers record every attempt, not just the last.
type BranchAttempt struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	BranchName string    `json:"branch_name"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
