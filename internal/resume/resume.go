// Package resume implements the Resume Manager: lock acquisition,
// checkpoint validation, and the deduplicated-union algorithm that
// reconstructs a job's remaining work list from {pending, failed,
// dead-letter queue} after a crash or restart. No teacher package has
// a direct analogue (the teacher runtime is single-process and
// stateless across restarts); the control flow instead follows the
// teacher's constructor-returns-wrapped-error idiom throughout
// (kernel.New's "failed to create %s: %w" chaining).
package resume

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/checkpoint"
	"github.com/tailored-agentic-units/flowkernel/internal/dlq"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
	"github.com/tailored-agentic-units/flowkernel/internal/resumelock"
)

// Options mirrors the engine's EnhancedResumeOptions directive surface.
type Options struct {
	ResetFailedAgents   bool
	IncludeDLQItems     bool
	ValidateEnvironment bool
	Force               bool
}

// OutcomeKind tags the three possible results of a resume attempt.
type OutcomeKind string

const (
	OutcomeFullWorkflowCompleted OutcomeKind = "full_workflow_completed"
	OutcomeMapOnlyCompleted     OutcomeKind = "map_only_completed"
	OutcomeReadyToExecute       OutcomeKind = "ready_to_execute"
)

// EnvMismatch is one environment variable whose current value differs
// from the job's recorded snapshot. Values are masked for display.
type EnvMismatch struct {
	Name     string
	Expected string
	Actual   string
}

// Outcome is the result of Resume.
type Outcome struct {
	Kind           OutcomeKind
	Phase          job.Phase
	RemainingItems []job.ItemID
	State          *job.State
	EnvMismatches  []EnvMismatch
}

// Manager drives the resume algorithm for one state/DLQ/lock root.
type Manager struct {
	Lock       *resumelock.Manager
	Checkpoint *checkpoint.Controller
	DLQ        *dlq.Queue
	Observer   observability.Observer
}

// New constructs a Manager from its three collaborators.
func New(lock *resumelock.Manager, ctrl *checkpoint.Controller, dlqQueue *dlq.Queue) *Manager {
	return &Manager{Lock: lock, Checkpoint: ctrl, DLQ: dlqQueue, Observer: observability.NoOpObserver{}}
}

// Resume executes the full resume algorithm for jobID per §4.7.
func (m *Manager) Resume(ctx context.Context, jobID job.ID, opts Options) (Outcome, error) {
	if m.Observer == nil {
		m.Observer = observability.NoOpObserver{}
	}

	guard, err := m.Lock.Acquire(jobID)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire resume lock for job %s: %w", jobID, err)
	}
	defer guard.Close()

	m.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventResumeBegin, Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "resume.Manager", JobID: string(jobID),
	})

	state, skipped, err := m.Checkpoint.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load checkpoint for job %s: %w", jobID, err)
	}
	if len(skipped) > 0 {
		m.Observer.OnEvent(ctx, observability.Event{
			Type: observability.EventCheckpointLoad, Level: observability.LevelWarning,
			Timestamp: time.Now(), Source: "resume.Manager", JobID: string(jobID),
			Data: map[string]any{"skipped_files": skipped},
		})
	}

	if err := m.validate(state); err != nil {
		return Outcome{}, err
	}

	var mismatches []EnvMismatch
	if opts.ValidateEnvironment {
		mismatches = diffEnvironment(state.EnvSnapshot)
	}

	if !opts.Force {
		if state.IsComplete && state.ReducePhase != nil && state.ReducePhase.Completed {
			return Outcome{Kind: OutcomeFullWorkflowCompleted, State: state, EnvMismatches: mismatches}, nil
		}
		if state.MapExhausted() && len(state.ReduceCommands) == 0 {
			return Outcome{Kind: OutcomeMapOnlyCompleted, State: state, EnvMismatches: mismatches}, nil
		}
	}

	remaining := m.dedupedRemaining(ctx, state, opts)

	phase := job.PhaseReduce
	if !state.MapExhausted() || len(remaining) > 0 {
		phase = job.PhaseMap
	}

	m.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventResumeEnd, Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "resume.Manager", JobID: string(jobID),
		Data: map[string]any{"phase": string(phase), "remaining": len(remaining)},
	})

	return Outcome{
		Kind:           OutcomeReadyToExecute,
		Phase:          phase,
		RemainingItems: remaining,
		State:          state,
		EnvMismatches:  mismatches,
	}, nil
}

func (m *Manager) validate(state *job.State) error {
	if state.CheckpointFormatVersion > job.CurrentCheckpointFormatVersion {
		return ferrors.New(ferrors.KindValidationFailed,
			"checkpoint format version %d is newer than supported version %d",
			state.CheckpointFormatVersion, job.CurrentCheckpointFormatVersion)
	}
	if state.TotalItems <= 0 {
		return ferrors.New(ferrors.KindValidationFailed, "checkpoint has no work items (total_items=%d)", state.TotalItems)
	}
	if len(state.CompletedAgents) > state.TotalItems {
		return ferrors.New(ferrors.KindValidationFailed,
			"completed_agents (%d) exceeds total_items (%d)", len(state.CompletedAgents), state.TotalItems)
	}
	return nil
}

// dedupedRemaining computes the priority-ordered, deduplicated union
// of pending, failed (if reset_failed_agents) and DLQ reprocess-eligible
// items (if include_dlq_items), logging dropped duplicates.
func (m *Manager) dedupedRemaining(ctx context.Context, state *job.State, opts Options) []job.ItemID {
	seen := make(map[job.ItemID]struct{}, state.TotalItems)
	var remaining []job.ItemID
	dropped := 0

	add := func(ids []job.ItemID) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				dropped++
				continue
			}
			seen[id] = struct{}{}
			remaining = append(remaining, id)
		}
	}

	add(state.PendingItems)

	if opts.ResetFailedAgents {
		failed := make([]job.ItemID, 0, len(state.FailedAgents))
		for id := range state.FailedAgents {
			failed = append(failed, id)
		}
		add(failed)
	}

	if opts.IncludeDLQItems && m.DLQ != nil {
		eligible := true
		var dlqIDs []job.ItemID
		for _, item := range m.DLQ.List(dlq.Filter{ReprocessEligible: &eligible}) {
			dlqIDs = append(dlqIDs, item.ItemID)
		}
		add(dlqIDs)
	}

	if dropped > 0 {
		m.Observer.OnEvent(ctx, observability.Event{
			Type: observability.EventResumeEnd, Level: observability.LevelWarning,
			Timestamp: time.Now(), Source: "resume.Manager", JobID: string(state.JobID),
			Data: map[string]any{"dropped_duplicates": dropped},
		})
	}

	return remaining
}

// diffEnvironment compares a job's recorded environment snapshot
// against the current process environment, masking values for
// display.
func diffEnvironment(expected map[string]string) []EnvMismatch {
	var mismatches []EnvMismatch
	for name, want := range expected {
		got := os.Getenv(name)
		if got != want {
			mismatches = append(mismatches, EnvMismatch{
				Name:     name,
				Expected: ferrors.MaskSecret(want),
				Actual:   ferrors.MaskSecret(got),
			})
		}
	}
	return mismatches
}
