// Package mapreduce implements the Map Phase Executor (bounded worker
// pool over work items, per-item retries in fresh worktrees, error
// policy routing) and the Reduce Phase Executor (sequential steps over
// aggregated map results). Generalized from the teacher's
// orchestrate/workflows.ProcessParallel worker-pool shape: indexed
// work distribution over a channel, a fixed worker goroutine count,
// Observer events at start/worker-start/worker-complete/complete, and
// fail-fast cancellation via context.WithCancel — adapted from a
// generic TaskProcessor[TItem,TResult] to work items routed through
// per-item worktrees, retries, and the error policy hook.
package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/checkpoint"
	"github.com/tailored-agentic-units/flowkernel/internal/dlq"
	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicy"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
)

// Executor runs the map phase for one job: it drains PendingItems
// through a bounded worker pool, records AgentResults, consults the
// error policy on failure, and checkpoints on the configured triggers.
type Executor struct {
	State  *job.State
	Runner ItemRunner

	Policy     *errorpolicy.Engine
	DLQ        *dlq.Queue
	Checkpoint *checkpoint.Controller
	Observer   observability.Observer

	mu        sync.Mutex
	stopped   bool
	stopCause string
}

// queueItem is one dispatch unit; it carries the attempt number so
// retries can be distinguished in logs/events.
type queueItem struct {
	id      job.ItemID
	attempt int
}

// Run drains the work queue until it is exhausted, the context is
// cancelled, or the error policy returns Stop. It returns a non-nil
// error only when the phase terminated due to Stop or context
// cancellation; ordinary per-item failures (Skip/Dlq/Retry) do not
// fail the phase.
func (e *Executor) Run(ctx context.Context) error {
	if e.Observer == nil {
		e.Observer = observability.NoOpObserver{}
	}

	workers := e.State.Config.MaxParallel
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan queueItem, len(e.State.WorkItems)*2+1)
	var pending sync.WaitGroup

	e.mu.Lock()
	for _, id := range append([]job.ItemID(nil), e.State.PendingItems...) {
		pending.Add(1)
		queue <- queueItem{id: id, attempt: 1}
	}
	e.mu.Unlock()

	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventJobStart, Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID),
		Data: map[string]any{"total_items": e.State.TotalItems, "workers": workers},
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.work(ctx, workerID, queue, &pending)
		}(w)
	}

	closed := make(chan struct{})
	go func() {
		pending.Wait()
		close(queue)
		close(closed)
	}()

	select {
	case <-closed:
	case <-ctx.Done():
	}
	wg.Wait()

	e.mu.Lock()
	stopped, cause := e.stopped, e.stopCause
	e.mu.Unlock()

	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventJobComplete, Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID),
		Data: map[string]any{
			"successful": e.State.SuccessfulCount,
			"failed":     e.State.FailedCount,
			"stopped":    stopped,
		},
	})

	if stopped {
		return fmt.Errorf("map phase stopped: %s", cause)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("map phase cancelled: %w", ctx.Err())
	}
	return nil
}

func (e *Executor) work(ctx context.Context, workerID int, queue chan queueItem, pending *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case qi, ok := <-queue:
			if !ok {
				return
			}
			e.handleItem(ctx, workerID, qi, queue, pending)
		}
	}
}

func (e *Executor) handleItem(ctx context.Context, workerID int, qi queueItem, queue chan queueItem, pending *sync.WaitGroup) {
	defer pending.Done()

	if e.isStopped() || ctx.Err() != nil {
		return
	}

	item := e.findItem(qi.id)

	e.mu.Lock()
	e.State.StartItem(qi.id)
	e.mu.Unlock()

	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventAgentStart, Level: observability.LevelVerbose,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID), ItemID: string(qi.id),
		Data: map[string]any{"worker_id": workerID, "attempt": qi.attempt},
	})

	start := time.Now()
	vars := varsFromItem(item)
	result, runErr := e.Runner.RunItem(ctx, item, vars)
	duration := time.Since(start)

	if runErr == nil {
		e.recordSuccess(ctx, qi.id, result, duration, qi.attempt)
		return
	}

	e.recordFailureAndDecide(ctx, workerID, qi, queue, pending, runErr, duration)
}

func (e *Executor) recordSuccess(ctx context.Context, id job.ItemID, result RunResult, duration time.Duration, attempt int) {
	e.mu.Lock()
	e.State.CompleteItem(job.AgentResult{
		ItemID:        id,
		Status:        job.StatusSuccess,
		RetryAttempt:  attempt,
		Output:        result.Output,
		Commits:       result.Commits,
		FilesModified: result.FilesModified,
		Duration:      duration,
	})
	e.mu.Unlock()

	if e.DLQ != nil {
		_ = e.DLQ.Remove(id)
	}
	if e.Policy != nil {
		e.Policy.OnSuccess(id)
	}
	e.afterDisposition(ctx)

	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventAgentComplete, Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID), ItemID: string(id),
		Data: map[string]any{"status": "success", "duration_ms": duration.Milliseconds()},
	})
}

// classifyFailureStatus maps a RunItem error to the AgentResult status
// it represents: a per-step timeout surfaces as a wrapped
// context.DeadlineExceeded, and cancellation (job stop, parent ctx
// cancelled) surfaces as a wrapped context.Canceled. Anything else is
// an ordinary failure.
func classifyFailureStatus(runErr error) job.Status {
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		return job.StatusTimeout
	case errors.Is(runErr, context.Canceled):
		return job.StatusCancelled
	default:
		return job.StatusFailed
	}
}

func (e *Executor) recordFailureAndDecide(ctx context.Context, workerID int, qi queueItem, queue chan queueItem, pending *sync.WaitGroup, runErr error, duration time.Duration) {
	e.mu.Lock()
	e.State.FailItem(job.AgentResult{
		ItemID:       qi.id,
		Status:       classifyFailureStatus(runErr),
		ErrorMessage: runErr.Error(),
		RetryAttempt: qi.attempt,
		Duration:     duration,
	})
	e.mu.Unlock()

	var decision errorpolicy.Decision
	if e.Policy != nil {
		decision = e.Policy.OnFailure(qi.id)
	} else {
		decision = errorpolicy.Decision{Kind: errorpolicy.DecisionDLQ}
	}

	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventAgentComplete, Level: observability.LevelWarning,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID), ItemID: string(qi.id),
		Data: map[string]any{"status": "failed", "decision": string(decision.Kind), "error": runErr.Error()},
	})

	switch decision.Kind {
	case errorpolicy.DecisionRetry:
		if decision.RetryDelay > 0 {
			select {
			case <-time.After(decision.RetryDelay):
			case <-ctx.Done():
				return
			}
		}
		e.mu.Lock()
		e.State.RequeueItem(qi.id)
		e.mu.Unlock()
		pending.Add(1)
		select {
		case queue <- queueItem{id: qi.id, attempt: decision.RetryAttempt + 1}:
		case <-ctx.Done():
			pending.Done()
		}
	case errorpolicy.DecisionDLQ:
		e.sendToDLQ(ctx, qi.id, runErr)
		e.afterDisposition(ctx)
	case errorpolicy.DecisionStop:
		e.stop(decision.Reason)
	case errorpolicy.DecisionCustom:
		// The executor has no custom-action handlers to call, so a
		// Custom decision sends the item to the dead-letter queue so
		// it is never silently dropped.
		e.sendToDLQ(ctx, qi.id, runErr)
		e.afterDisposition(ctx)
	default: // DecisionSkip, DecisionContinue
		e.afterDisposition(ctx)
	}
}

func (e *Executor) sendToDLQ(ctx context.Context, id job.ItemID, cause error) {
	if e.DLQ == nil {
		return
	}
	item := e.findItem(id)
	rec := e.State.FailedAgents[id]
	_ = e.DLQ.Add(dlq.Item{
		ItemID:            id,
		ItemData:          item.Data,
		FirstAttempt:      e.State.StartedAt,
		LastAttempt:       time.Now(),
		FailureCount:      rec.Attempts,
		ErrorSignature:    dlq.ErrorSignature("agent_failure", cause.Error()),
		ReprocessEligible: true,
	})
	e.Observer.OnEvent(ctx, observability.Event{
		Type: observability.EventDLQAdd, Level: observability.LevelWarning,
		Timestamp: time.Now(), Source: "mapreduce.Executor", JobID: string(e.State.JobID), ItemID: string(id),
	})
}

func (e *Executor) afterDisposition(ctx context.Context) {
	if e.Checkpoint == nil {
		return
	}
	e.Checkpoint.RecordItemCompletion()
	if !e.Checkpoint.ShouldCheckpoint() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.Checkpoint.Persist(ctx, e.State, checkpoint.ReasonInterval)
}

func (e *Executor) stop(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stopped {
		e.stopped = true
		e.stopCause = reason
	}
}

func (e *Executor) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Executor) findItem(id job.ItemID) job.WorkItem {
	for _, it := range e.State.WorkItems {
		if it.ID == id {
			return it
		}
	}
	return job.WorkItem{ID: id}
}
