package job

import (
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/stepexec"
)

// Phase is the current stage of job execution.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseMap      Phase = "map"
	PhaseReduce   Phase = "reduce"
	PhaseComplete Phase = "complete"
)

// ReducePhaseState tracks the reduce phase's own lifecycle, separate
// from the map phase's per-item bookkeeping.
type ReducePhaseState struct {
	Started     bool       `json:"started"`
	Completed   bool       `json:"completed"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// State is the full persisted state of one job. It is mutated only by
// the job's single in-memory controller and persisted through the
// checkpoint store at the triggers described in the checkpoint
// controller.
type State struct {
	JobID     ID        `json:"job_id"`
	Config    Config    `json:"config"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WorkItems []WorkItem `json:"work_items"`

	PendingItems     []ItemID                 `json:"pending_items"`
	InProgressItems  []ItemID                 `json:"in_progress_items"`
	CompletedAgents  map[ItemID]struct{}      `json:"completed_agents"`
	FailedAgents     map[ItemID]FailureRecord `json:"failed_agents"`
	AgentResults     map[ItemID]AgentResult   `json:"agent_results"`

	TotalItems      int  `json:"total_items"`
	SuccessfulCount int  `json:"successful_count"`
	FailedCount     int  `json:"failed_count"`
	IsComplete      bool `json:"is_complete"`

	CheckpointVersion      uint64 `json:"checkpoint_version"`
	CheckpointFormatVersion int   `json:"checkpoint_format_version"`

	AgentTemplate   []stepexec.Step    `json:"agent_template"`
	ReduceCommands  []stepexec.Step    `json:"reduce_commands,omitempty"`
	ReducePhase     *ReducePhaseState  `json:"reduce_phase_state,omitempty"`

	ParentWorktree string `json:"parent_worktree,omitempty"`

	Phase Phase `json:"phase"`

	// EnvSnapshot records the environment variables the job depended
	// on at start time, for optional drift detection on resume.
	EnvSnapshot map[string]string `json:"env_snapshot,omitempty"`
}

// Config is the per-job directive surface: map/reduce execution
// parameters and the error policy governing failure routing.
type Config struct {
	MaxParallel      int                          `json:"max_parallel"`
	RetryOnFailure   int                          `json:"retry_on_failure"`
	TimeoutPerAgent  time.Duration                `json:"timeout_per_agent"`
	ContinueOnFailure bool                        `json:"continue_on_failure"`
	ErrorPolicy      errorpolicytypes.Policy      `json:"error_policy"`
}

// CurrentCheckpointFormatVersion is the schema version this build of
// the engine writes and the highest version it can load.
const CurrentCheckpointFormatVersion = 1

// New creates a fresh State for a newly submitted job.
func New(id ID, items []WorkItem, cfg Config, agentTemplate []stepexec.Step) *State {
	pending := make([]ItemID, len(items))
	for i, it := range items {
		pending[i] = it.ID
	}
	now := time.Now()
	return &State{
		JobID:                   id,
		Config:                  cfg,
		StartedAt:               now,
		UpdatedAt:               now,
		WorkItems:               items,
		PendingItems:            pending,
		CompletedAgents:         make(map[ItemID]struct{}),
		FailedAgents:            make(map[ItemID]FailureRecord),
		AgentResults:            make(map[ItemID]AgentResult),
		TotalItems:              len(items),
		CheckpointFormatVersion: CurrentCheckpointFormatVersion,
		AgentTemplate:           agentTemplate,
		Phase:                   PhaseSetup,
	}
}

// Clone returns a deep-enough copy of State for safe handoff to
// readers outside the owning controller (spec's "one owner mutates,
// observers copy out under a read guard" rule).
func (s *State) Clone() *State {
	clone := *s
	clone.WorkItems = append([]WorkItem(nil), s.WorkItems...)
	clone.PendingItems = append([]ItemID(nil), s.PendingItems...)
	clone.InProgressItems = append([]ItemID(nil), s.InProgressItems...)

	clone.CompletedAgents = make(map[ItemID]struct{}, len(s.CompletedAgents))
	for k := range s.CompletedAgents {
		clone.CompletedAgents[k] = struct{}{}
	}

	clone.FailedAgents = make(map[ItemID]FailureRecord, len(s.FailedAgents))
	for k, v := range s.FailedAgents {
		clone.FailedAgents[k] = v
	}

	clone.AgentResults = make(map[ItemID]AgentResult, len(s.AgentResults))
	for k, v := range s.AgentResults {
		clone.AgentResults[k] = v
	}

	clone.AgentTemplate = append([]stepexec.Step(nil), s.AgentTemplate...)
	clone.ReduceCommands = append([]stepexec.Step(nil), s.ReduceCommands...)

	if s.ReducePhase != nil {
		rp := *s.ReducePhase
		clone.ReducePhase = &rp
	}

	if s.EnvSnapshot != nil {
		clone.EnvSnapshot = make(map[string]string, len(s.EnvSnapshot))
		for k, v := range s.EnvSnapshot {
			clone.EnvSnapshot[k] = v
		}
	}

	return &clone
}
