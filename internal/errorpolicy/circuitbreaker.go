package errorpolicy

import (
	"sync"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// CircuitBreaker is a pure-data three-state breaker: Closed accepts
// everything, Open rejects everything until Timeout elapses, HalfOpen
// admits a bounded number of probe requests and transitions to Closed
// on SuccessThreshold consecutive successes or back to Open on any
// failure.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg errorpolicytypes.CircuitBreakerConfig

	state            State
	consecutiveFails int
	consecutiveOK    int
	openedAt         time.Time
	halfOpenInFlight int
}

// NewCircuitBreaker constructs a breaker in the Closed state.
func NewCircuitBreaker(cfg errorpolicytypes.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the breaker's current state, first applying the
// Open->HalfOpen timeout transition if due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransitionToHalfOpenLocked(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) maybeTransitionToHalfOpenLocked(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = 0
		cb.consecutiveOK = 0
	}
}

// AllowRequest reports whether a new item may be dispatched: always
// true when Closed, false when Open (until the timeout elapses), and
// bounded by HalfOpenRequests while HalfOpen.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransitionToHalfOpenLocked(time.Now())

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenRequests {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default: // StateOpen
		return false
	}
}

// RecordSuccess reports a successful item disposition.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.consecutiveOK++
		cb.consecutiveFails = 0
		if cb.consecutiveOK >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.consecutiveOK = 0
			cb.halfOpenInFlight = 0
		}
	case StateClosed:
		cb.consecutiveFails = 0
	}
}

// RecordFailure reports a failed item disposition.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.openLocked()
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.cfg.FailureThreshold {
			cb.openLocked()
		}
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.consecutiveFails = 0
	cb.consecutiveOK = 0
	cb.halfOpenInFlight = 0
}
