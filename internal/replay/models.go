// internal/replay/models.go
package replay

// RoleUser and RoleAssistant are the only roles that appear in a parsed
// conversation. Records carrying any other role are dropped at parse time.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Branch terminal statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// ToolCall is a tool invocation issued by the assistant
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the output of a tool execution, returned on a user turn
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error"`
}

// Message is a single turn in a conversation. Content holds the flattened
// text; structured tool records are kept separately so the wire format can
// be reassembled without re-parsing. Timestamp is origin-preserved and
// never reparsed.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Conversation is an ordered, immutable sequence of messages loaded from a
// single archive file. SessionID and ProjectPath are provenance only.
type Conversation struct {
	SessionID   string    `json:"session_id"`
	ProjectPath string    `json:"project_path"`
	Messages    []Message `json:"messages"`
}

// StepCount returns the number of messages in the conversation
func (c *Conversation) StepCount() int {
	return len(c.Messages)
}

// AtStep returns a new conversation truncated to the first n messages.
// The receiver is never mutated.
func (c *Conversation) AtStep(n int) *Conversation {
	return &Conversation{
		SessionID:   c.SessionID,
		ProjectPath: c.ProjectPath,
		Messages:    c.Messages[:n],
	}
}

// Checkpoint is an immutable snapshot of a conversation prefix. Step is
// 1-indexed and inclusive: len(Messages) == Step always holds.
type Checkpoint struct {
	ConversationID string    `json:"conversation_id"`
	Step           int       `json:"step"`
	Messages       []Message `json:"messages"`
	ProjectPath    string    `json:"project_path"`
	CreatedAt      string    `json:"created_at"`
}

// BranchConfig holds the execution parameters for one branch
type BranchConfig struct {
	Name          string `json:"name" yaml:"name"`
	Model         string `json:"model" yaml:"model"`
	InjectMessage string `json:"inject_message,omitempty" yaml:"inject_message"`
	SystemPrompt  string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	MaxTurns      int    `json:"max_turns" yaml:"max_turns"`
}

// ReplayRequest asks for one conversation to be forked and re-executed
// under several branch configurations
type ReplayRequest struct {
	ConversationID string         `json:"conversation_id"`
	ForkAtStep     int            `json:"fork_at_step"`
	Branches       []BranchConfig `json:"branches"`
}

// TokenUsage is the exact token accounting for one branch. Total is always
// Input + Output, never estimated.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// BranchResult is the outcome of one branch execution. Messages holds only
// the turns produced after the fork point. A failed branch still carries
// whatever messages and duration accumulated before the failure.
type BranchResult struct {
	BranchName string       `json:"branch_name"`
	Config     BranchConfig `json:"config"`
	Messages   []Message    `json:"messages"`
	DurationMs int64        `json:"duration_ms"`
	TokenUsage *TokenUsage  `json:"token_usage,omitempty"`
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// BranchSummary is the per-branch entry in a comparison summary
type BranchSummary struct {
	Status        string      `json:"status"`
	DurationMs    int64       `json:"duration_ms"`
	MessageCount  int         `json:"message_count"`
	Model         string      `json:"model"`
	Tokens        *TokenUsage `json:"tokens,omitempty"`
	Error         string      `json:"error,omitempty"`
	OutputPreview string      `json:"output_preview,omitempty"`
}

// Metrics aggregates successful branches only. AvgTokens is nil when no
// successful branch reported usage.
type Metrics struct {
	AvgDurationMs int64  `json:"avg_duration_ms"`
	MinDurationMs int64  `json:"min_duration_ms"`
	MaxDurationMs int64  `json:"max_duration_ms"`
	AvgTokens     *int64 `json:"avg_tokens,omitempty"`
}

// Summary is the aggregate view over all branch results of one run
type Summary struct {
	TotalBranches int                      `json:"total_branches"`
	Successful    int                      `json:"successful"`
	Failed        int                      `json:"failed"`
	Branches      map[string]BranchSummary `json:"branches"`
	Metrics       *Metrics                 `json:"metrics,omitempty"`
}

// ComparisonResult is the final artifact of a replay run: the original
// request, the checkpoint it forked from, every branch outcome (failed
// branches included) and the aggregate summary.
type ComparisonResult struct {
	Request           ReplayRequest  `json:"request"`
	Checkpoint        *Checkpoint    `json:"checkpoint"`
	Branches          []BranchResult `json:"branches"`
	TotalDurationMs   int64          `json:"total_duration_ms"`
	ComparisonSummary *Summary       `json:"comparison_summary,omitempty"`
}
