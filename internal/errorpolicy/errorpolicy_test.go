package errorpolicy

import (
	"testing"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

func TestDelayStrategies(t *testing.T) {
	base := 10 * time.Millisecond
	cases := []struct {
		strategy errorpolicytypes.Backoff
		attempt  int
		want     time.Duration
	}{
		{errorpolicytypes.BackoffFixed, 1, base},
		{errorpolicytypes.BackoffFixed, 3, base},
		{errorpolicytypes.BackoffLinear, 3, 30 * time.Millisecond},
		{errorpolicytypes.BackoffExponential, 3, 40 * time.Millisecond},
		{errorpolicytypes.BackoffFibonacci, 1, 10 * time.Millisecond},
		{errorpolicytypes.BackoffFibonacci, 5, 50 * time.Millisecond},
	}
	for _, c := range cases {
		got := Delay(c.strategy, base, c.attempt)
		if got != c.want {
			t.Errorf("Delay(%v, %v, %d) = %v, want %v", c.strategy, base, c.attempt, got, c.want)
		}
	}
}

func TestEngineDLQByDefault(t *testing.T) {
	e := NewEngine(errorpolicytypes.DefaultPolicy())
	d := e.OnFailure("item_0")
	if d.Kind != DecisionDLQ {
		t.Errorf("Kind = %v, want DecisionDLQ", d.Kind)
	}
}

func TestEngineRetryThenExhausts(t *testing.T) {
	policy := errorpolicytypes.Policy{
		OnItemFailure: errorpolicytypes.ActionRetry,
		RetryConfig:   &errorpolicytypes.RetryConfig{MaxAttempts: 2, Backoff: errorpolicytypes.BackoffFixed, BaseDelay: time.Millisecond},
	}
	e := NewEngine(policy)

	d1 := e.OnFailure("item_0")
	if d1.Kind != DecisionRetry || d1.RetryAttempt != 1 {
		t.Fatalf("first failure decision = %+v, want Retry attempt 1", d1)
	}
	d2 := e.OnFailure("item_0")
	if d2.Kind != DecisionRetry || d2.RetryAttempt != 2 {
		t.Fatalf("second failure decision = %+v, want Retry attempt 2", d2)
	}
	d3 := e.OnFailure("item_0")
	if d3.Kind != DecisionDLQ {
		t.Fatalf("third failure decision = %+v, want DLQ (attempts exhausted)", d3)
	}
}

func TestEngineMaxFailuresStops(t *testing.T) {
	max := 2
	policy := errorpolicytypes.Policy{OnItemFailure: errorpolicytypes.ActionSkip, MaxFailures: &max}
	e := NewEngine(policy)

	_ = e.OnFailure("item_0")
	d := e.OnFailure("item_1")
	if d.Kind != DecisionStop {
		t.Errorf("Kind = %v, want DecisionStop after max_failures reached", d.Kind)
	}
}

func TestEngineFailureThresholdStopsAfterTenProcessed(t *testing.T) {
	threshold := 0.3
	policy := errorpolicytypes.Policy{OnItemFailure: errorpolicytypes.ActionSkip, FailureThreshold: &threshold}
	e := NewEngine(policy)

	for i := 0; i < 9; i++ {
		e.OnSuccess(job.ItemIDForIndex(i))
	}
	// 9 successes, then failures push processed to >=10 with a high
	// failure rate.
	d := e.OnFailure(job.ItemIDForIndex(9))
	if d.Kind == DecisionStop {
		t.Fatalf("did not expect stop at exactly 10 processed with 1 failure (rate 0.1)")
	}
	for i := 10; i < 15; i++ {
		d = e.OnFailure(job.ItemIDForIndex(i))
	}
	if d.Kind != DecisionStop {
		t.Errorf("Kind = %v, want DecisionStop once failure rate exceeds threshold", d.Kind)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(errorpolicytypes.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		HalfOpenRequests: 1,
	})

	if cb.State() != StateClosed {
		t.Fatalf("initial state = %v, want Closed", cb.State())
	}
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want Open after failure threshold", cb.State())
	}
	if cb.AllowRequest() {
		t.Error("expected AllowRequest() false while Open")
	}
}

func TestCircuitBreakerHalfOpenRecoversToClosed(t *testing.T) {
	cb := NewCircuitBreaker(errorpolicytypes.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
		HalfOpenRequests: 1,
	})
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want Open", cb.State())
	}

	time.Sleep(3 * time.Millisecond)
	if !cb.AllowRequest() {
		t.Fatal("expected AllowRequest() true once timeout elapses (half-open probe)")
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed after success_threshold probes succeed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(errorpolicytypes.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
		HalfOpenRequests: 1,
	})
	cb.RecordFailure()
	time.Sleep(3 * time.Millisecond)
	cb.AllowRequest()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want Open after half-open probe fails", cb.State())
	}
}

func TestEngineOnFailureGivesOpeningFailureNormalDisposition(t *testing.T) {
	policy := errorpolicytypes.Policy{
		OnItemFailure: errorpolicytypes.ActionSkip,
		CircuitBreaker: &errorpolicytypes.CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
			HalfOpenRequests: 1,
		},
	}
	e := NewEngine(policy)

	for i := 0; i < 3; i++ {
		d := e.OnFailure(job.ItemIDForIndex(i))
		if d.Kind != DecisionSkip {
			t.Fatalf("failure %d decision = %+v, want Skip (breaker must open only after this failure is recorded)", i+1, d)
		}
	}
	if e.Breaker().State() != StateOpen {
		t.Fatalf("breaker state = %v, want Open after 3 consecutive failures", e.Breaker().State())
	}

	d := e.OnFailure(job.ItemIDForIndex(3))
	if d.Kind != DecisionStop || d.Reason != "circuit open" {
		t.Errorf("4th failure decision = %+v, want Stop(circuit open)", d)
	}
}

func TestOnSuccessClearsRetryAttempts(t *testing.T) {
	policy := errorpolicytypes.Policy{
		OnItemFailure: errorpolicytypes.ActionRetry,
		RetryConfig:   &errorpolicytypes.RetryConfig{MaxAttempts: 3, Backoff: errorpolicytypes.BackoffFixed, BaseDelay: time.Millisecond},
	}
	e := NewEngine(policy)
	e.OnFailure("item_0")
	e.OnSuccess("item_0")

	d := e.OnFailure("item_0")
	if d.RetryAttempt != 1 {
		t.Errorf("RetryAttempt = %d, want 1 (counter reset after success)", d.RetryAttempt)
	}
}
