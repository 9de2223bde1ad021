package mapreduce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
	"github.com/tailored-agentic-units/flowkernel/internal/stepexec"
)

// ReduceExecutor runs the reduce phase's sequential steps in the
// parent worktree once the map phase has exhausted its work queue.
// Grounded on the teacher's orchestrate/workflows.Chain sequential
// step-by-step execution over accumulated context, generalized from
// arbitrary chain steps to the reduce command list run over
// map-phase-derived context variables.
type ReduceExecutor struct {
	State    *job.State
	Dispatch stepexec.Dispatcher
	WorkDir  string // parent worktree; commands run here directly, no isolation
	Observer observability.Observer
}

// Run executes ReduceCommands sequentially, populating the variable
// context with map.successful, map.failed, map.total and map.results
// per §4.2. The reduce phase is fatal to the job on any step failure
// that is not IgnoreErrors.
func (r *ReduceExecutor) Run(ctx context.Context) error {
	if r.Observer == nil {
		r.Observer = observability.NoOpObserver{}
	}
	if r.State.ReducePhase == nil {
		r.State.ReducePhase = &job.ReducePhaseState{}
	}

	startedAt := time.Now()
	r.State.ReducePhase.Started = true
	r.State.ReducePhase.StartedAt = &startedAt

	r.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventReduceStart, Level: observability.LevelInfo,
		Timestamp: startedAt, Source: "mapreduce.ReduceExecutor", JobID: string(r.State.JobID),
	})

	vars, err := r.contextVars()
	if err != nil {
		return r.fail(ctx, fmt.Errorf("build reduce context: %w", err))
	}

	var output string
	for _, step := range r.State.ReduceCommands {
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		out, err := r.Dispatch.Run(stepCtx, r.WorkDir, step, vars)
		if cancel != nil {
			cancel()
		}
		if step.CaptureOutput {
			output += out.Stdout
		}
		if err != nil && !step.IgnoreErrors {
			return r.fail(ctx, fmt.Errorf("reduce step %s: %w", step.ID, err))
		}
	}

	completedAt := time.Now()
	r.State.ReducePhase.Completed = true
	r.State.ReducePhase.CompletedAt = &completedAt
	r.State.ReducePhase.Output = output
	r.State.Phase = job.PhaseComplete
	r.State.IsComplete = true

	r.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventReduceComplete, Level: observability.LevelInfo,
		Timestamp: completedAt, Source: "mapreduce.ReduceExecutor", JobID: string(r.State.JobID),
		Data: map[string]any{"duration_ms": completedAt.Sub(startedAt).Milliseconds()},
	})

	return nil
}

func (r *ReduceExecutor) fail(ctx context.Context, err error) error {
	r.State.ReducePhase.Error = err.Error()
	r.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventReduceComplete, Level: observability.LevelError,
		Timestamp: time.Now(), Source: "mapreduce.ReduceExecutor", JobID: string(r.State.JobID),
		Data: map[string]any{"error": err.Error()},
	})
	return err
}

func (r *ReduceExecutor) contextVars() (stepexec.Vars, error) {
	results := make([]job.AgentResult, 0, len(r.State.AgentResults))
	for _, res := range r.State.AgentResults {
		results = append(results, res)
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}

	return stepexec.Vars{
		"map.successful": fmt.Sprintf("%d", r.State.SuccessfulCount),
		"map.failed":     fmt.Sprintf("%d", r.State.FailedCount),
		"map.total":      fmt.Sprintf("%d", r.State.TotalItems),
		"map.results":    string(resultsJSON),
	}, nil
}
