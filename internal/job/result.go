package job

import "time"

// Status is the terminal or in-flight disposition of an AgentResult.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
	StatusRetrying  Status = "retrying"
)

// AgentResult captures the outcome of one agent attempt against one
// work item.
type AgentResult struct {
	ItemID        ItemID        `json:"item_id"`
	Status        Status        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	RetryAttempt  int           `json:"retry_attempt,omitempty"`
	Output        string        `json:"output,omitempty"`
	Commits       []string      `json:"commits,omitempty"`
	FilesModified []string      `json:"files_modified,omitempty"`
	Duration      time.Duration `json:"duration"`
	WorktreePath  string        `json:"worktree_path,omitempty"`
	BranchName    string        `json:"branch_name,omitempty"`
}

// IsTerminal reports whether the status represents a final disposition
// that will not be followed by a Retrying transition for this attempt.
func (r AgentResult) IsTerminal() bool {
	switch r.Status {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// FailureRecord tracks the retry history for an item that has failed
// at least once.
type FailureRecord struct {
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error"`
	LastAttempt   time.Time     `json:"last_attempt"`
	WorktreeInfo  *WorktreeInfo `json:"worktree_info,omitempty"`
}

// WorktreeInfo is a minimal snapshot of a failed attempt's worktree,
// retained for diagnostics and DLQ artifacts.
type WorktreeInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
}
