package errorpolicy

import (
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
)

// Delay computes the retry delay for the given 1-indexed attempt
// number under the named backoff strategy.
func Delay(strategy errorpolicytypes.Backoff, base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch strategy {
	case errorpolicytypes.BackoffLinear:
		return base * time.Duration(attempt)
	case errorpolicytypes.BackoffExponential:
		return base * time.Duration(1<<uint(attempt-1))
	case errorpolicytypes.BackoffFibonacci:
		return base * time.Duration(fibonacci(attempt))
	default: // BackoffFixed
		return base
	}
}

func fibonacci(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i < n; i++ {
		a, b = b, a+b
	}
	return b
}
