package input

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// Provider generates count work items without reading any input file.
// One concrete implementation exists per generated-input kind, each
// constructed by its own New* function below.
type Provider interface {
	Generate(count int) ([]job.WorkItem, error)
}

type providerFunc func(count int) ([]job.WorkItem, error)

func (f providerFunc) Generate(count int) ([]job.WorkItem, error) { return f(count) }

func buildItems(count int, value func(i int) any) ([]job.WorkItem, error) {
	if count < 0 {
		return nil, ferrors.New(ferrors.KindValidationFailed, "generated input count must be >= 0, got %d", count)
	}
	items := make([]job.WorkItem, count)
	for i := 0; i < count; i++ {
		data, err := json.Marshal(value(i))
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindSerialization, err, "marshal generated item %d", i)
		}
		items[i] = job.WorkItem{ID: job.ItemIDForIndex(i), Data: data}
	}
	return items, nil
}

// NewSequenceProvider generates 0, 1, 2, ... count-1.
func NewSequenceProvider() Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		return buildItems(count, func(i int) any { return i })
	})
}

// NewRangeProvider generates count evenly-spaced integers starting at
// start with the given step.
func NewRangeProvider(start, step int) Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		return buildItems(count, func(i int) any { return start + i*step })
	})
}

// NewUUIDProvider generates count fresh random UUIDs.
func NewUUIDProvider() Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		return buildItems(count, func(i int) any { return uuid.NewString() })
	})
}

// NewTimestampProvider generates count RFC3339 timestamps spaced by
// interval, starting at start.
func NewTimestampProvider(start time.Time, interval time.Duration) Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		return buildItems(count, func(i int) any {
			return start.Add(time.Duration(i) * interval).Format(time.RFC3339)
		})
	})
}

// GridPoint is one coordinate emitted by the grid provider.
type GridPoint struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// NewGridProvider generates row-major (row, col) pairs for a grid with
// the given number of columns; count determines how many points are
// emitted.
func NewGridProvider(cols int) Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		if cols <= 0 {
			return nil, ferrors.New(ferrors.KindValidationFailed, "grid provider requires cols > 0, got %d", cols)
		}
		return buildItems(count, func(i int) any {
			return GridPoint{Row: i / cols, Col: i % cols}
		})
	})
}

// NewFibonacciProvider generates the first count Fibonacci numbers.
func NewFibonacciProvider() Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		a, b := 0, 1
		return buildItems(count, func(i int) any {
			v := a
			a, b = b, a+b
			return v
		})
	})
}

// NewFactorialProvider generates 0!, 1!, ..., (count-1)!.
func NewFactorialProvider() Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		acc := int64(1)
		return buildItems(count, func(i int) any {
			if i > 0 {
				acc *= int64(i)
			}
			return acc
		})
	})
}

// NewPrimeProvider generates the first count prime numbers.
func NewPrimeProvider() Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		primes := make([]int, 0, count)
		candidate := 2
		for len(primes) < count {
			if isPrime(candidate) {
				primes = append(primes, candidate)
			}
			candidate++
		}
		return buildItems(count, func(i int) any { return primes[i] })
	})
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// NewRandomProvider generates count random integers in [min, max).
func NewRandomProvider(min, max int) Provider {
	return providerFunc(func(count int) ([]job.WorkItem, error) {
		if max <= min {
			return nil, ferrors.New(ferrors.KindValidationFailed, "random provider requires max > min (got min=%d max=%d)", min, max)
		}
		span := big.NewInt(int64(max - min))
		items := make([]job.WorkItem, count)
		for i := 0; i < count; i++ {
			n, err := rand.Int(rand.Reader, span)
			if err != nil {
				return nil, ferrors.Wrap(ferrors.KindGeneral, err, "generate random value %d", i)
			}
			data, err := json.Marshal(min + int(n.Int64()))
			if err != nil {
				return nil, ferrors.Wrap(ferrors.KindSerialization, err, "marshal generated item %d", i)
			}
			items[i] = job.WorkItem{ID: job.ItemIDForIndex(i), Data: data}
		}
		return items, nil
	})
}

// ProviderForKind resolves a named generated-input kind to its
// Provider constructor, matching the kind strings used in workflow
// YAML. Unsupported kinds return an error rather than a nil Provider.
func ProviderForKind(kind string, params map[string]any) (Provider, error) {
	switch kind {
	case "sequence":
		return NewSequenceProvider(), nil
	case "range":
		return NewRangeProvider(intParam(params, "start", 0), intParam(params, "step", 1)), nil
	case "uuid":
		return NewUUIDProvider(), nil
	case "timestamp":
		return NewTimestampProvider(time.Now(), time.Duration(intParam(params, "interval_seconds", 1))*time.Second), nil
	case "grid":
		return NewGridProvider(intParam(params, "cols", 1)), nil
	case "fibonacci":
		return NewFibonacciProvider(), nil
	case "factorial":
		return NewFactorialProvider(), nil
	case "prime":
		return NewPrimeProvider(), nil
	case "random":
		return NewRandomProvider(intParam(params, "min", 0), intParam(params, "max", 100)), nil
	default:
		return nil, ferrors.New(ferrors.KindValidationFailed, "unknown generated input kind %q", kind)
	}
}

func intParam(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}
