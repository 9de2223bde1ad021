// Package errorpolicytypes holds the pure data types describing a
// job's error-handling directive surface. They are split from package
// errorpolicy (which holds the circuit breaker and decision logic) so
// that internal/job can embed a Policy in its persisted Config without
// creating an import cycle with the policy engine itself.
package errorpolicytypes

import "time"

// ItemFailureAction is what happens to an item whose agent run failed.
type ItemFailureAction string

const (
	ActionDLQ    ItemFailureAction = "dlq"
	ActionRetry  ItemFailureAction = "retry"
	ActionSkip   ItemFailureAction = "skip"
	ActionStop   ItemFailureAction = "stop"
	ActionCustom ItemFailureAction = "custom"
)

// ErrorCollection controls how failures are surfaced to observers.
type ErrorCollection string

const (
	CollectionAggregate ErrorCollection = "aggregate"
	CollectionImmediate ErrorCollection = "immediate"
	CollectionBatched   ErrorCollection = "batched"
)

// Backoff is the retry delay strategy.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
	BackoffFibonacci   Backoff = "fibonacci"
)

// RetryConfig parameterizes the retry backoff strategy.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	Backoff     Backoff       `json:"backoff"`
	BaseDelay   time.Duration `json:"base_delay,omitempty"`
}

// CircuitBreakerConfig parameterizes the three-state circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `json:"failure_threshold"`
	SuccessThreshold   int           `json:"success_threshold"`
	Timeout            time.Duration `json:"timeout"`
	HalfOpenRequests   int           `json:"half_open_requests"`
}

// Policy is the full per-job error-handling directive surface.
type Policy struct {
	OnItemFailure    ItemFailureAction     `json:"on_item_failure"`
	CustomActionName string                `json:"custom_action_name,omitempty"`
	ContinueOnFailure bool                 `json:"continue_on_failure"`
	MaxFailures      *int                  `json:"max_failures,omitempty"`
	FailureThreshold *float64              `json:"failure_threshold,omitempty"`
	ErrorCollection  ErrorCollection       `json:"error_collection,omitempty"`
	CircuitBreaker   *CircuitBreakerConfig `json:"circuit_breaker,omitempty"`
	RetryConfig      *RetryConfig          `json:"retry_config,omitempty"`
	BatchSize        int                   `json:"batch_size,omitempty"`
}

// DefaultPolicy matches spec defaults: Dlq routing, continue on
// failure, immediate error collection.
func DefaultPolicy() Policy {
	return Policy{
		OnItemFailure:     ActionDLQ,
		ContinueOnFailure: true,
		ErrorCollection:   CollectionImmediate,
	}
}
