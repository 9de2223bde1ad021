// Package errorpolicy decides what happens to a failed item: retry,
// skip, route to the dead-letter queue, stop the whole job, or invoke
// a custom handler. Decisions are returned as pure data (Decision) so
// callers (the map phase executor) drive all side effects themselves
// — grounded on the teacher's route-evaluation-returns-data style in
// orchestrate/workflows/conditional.go, generalized from branch
// selection to failure routing. A circuit breaker sits alongside the
// per-item decision: independent of any single item's outcome, it can
// force every subsequent decision to Stop once enough consecutive
// failures trip it.
package errorpolicy

import (
	"sync"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// DecisionKind is the tagged union discriminant for Decision.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionRetry    DecisionKind = "retry"
	DecisionSkip     DecisionKind = "skip"
	DecisionDLQ      DecisionKind = "dlq"
	DecisionStop     DecisionKind = "stop"
	DecisionCustom   DecisionKind = "custom"
)

// Decision is the outcome of evaluating one item's failure (or
// success) against the active Policy and circuit breaker state.
type Decision struct {
	Kind             DecisionKind
	RetryAttempt     int
	RetryDelay       time.Duration
	Reason           string
	CustomActionName string
}

// Engine evaluates failures against a Policy, tracking per-item retry
// attempts and a circuit breaker across the whole job.
type Engine struct {
	mu sync.Mutex

	policy  errorpolicytypes.Policy
	breaker *CircuitBreaker

	processed int
	failures  int
	attempts  map[job.ItemID]int
}

// NewEngine constructs an Engine for policy. If policy.CircuitBreaker
// is nil, the breaker never trips (AllowRequest always true).
func NewEngine(policy errorpolicytypes.Policy) *Engine {
	e := &Engine{policy: policy, attempts: make(map[job.ItemID]int)}
	if policy.CircuitBreaker != nil {
		e.breaker = NewCircuitBreaker(*policy.CircuitBreaker)
	}
	return e
}

// Breaker exposes the underlying circuit breaker, or nil if none is
// configured.
func (e *Engine) Breaker() *CircuitBreaker { return e.breaker }

// OnSuccess records a successful item disposition.
func (e *Engine) OnSuccess(id job.ItemID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed++
	delete(e.attempts, id)
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}
}

// OnFailure records a failed item disposition and returns the
// Decision the caller must act on.
func (e *Engine) OnFailure(id job.ItemID) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.processed++
	e.failures++
	if e.breaker != nil {
		if e.breaker.State() == StateOpen {
			return Decision{Kind: DecisionStop, Reason: "circuit open"}
		}
		e.breaker.RecordFailure()
	}

	if e.policy.MaxFailures != nil && e.failures >= *e.policy.MaxFailures {
		return Decision{Kind: DecisionStop, Reason: "max_failures exceeded"}
	}

	if e.policy.FailureThreshold != nil && e.processed >= 10 {
		rate := float64(e.failures) / float64(e.processed)
		if rate > *e.policy.FailureThreshold {
			return Decision{Kind: DecisionStop, Reason: "failure_threshold exceeded"}
		}
	}

	switch e.policy.OnItemFailure {
	case errorpolicytypes.ActionRetry:
		return e.retryDecisionLocked(id)
	case errorpolicytypes.ActionSkip:
		return Decision{Kind: DecisionSkip}
	case errorpolicytypes.ActionStop:
		return Decision{Kind: DecisionStop, Reason: "on_item_failure: stop"}
	case errorpolicytypes.ActionCustom:
		return Decision{Kind: DecisionCustom, CustomActionName: e.policy.CustomActionName}
	default: // ActionDLQ
		return Decision{Kind: DecisionDLQ}
	}
}

func (e *Engine) retryDecisionLocked(id job.ItemID) Decision {
	rc := e.policy.RetryConfig
	if rc == nil {
		return Decision{Kind: DecisionDLQ}
	}
	e.attempts[id]++
	attempt := e.attempts[id]
	if attempt > rc.MaxAttempts {
		delete(e.attempts, id)
		return Decision{Kind: DecisionDLQ, Reason: "retry attempts exhausted"}
	}
	return Decision{
		Kind:         DecisionRetry,
		RetryAttempt: attempt,
		RetryDelay:   Delay(rc.Backoff, rc.BaseDelay, attempt),
	}
}
