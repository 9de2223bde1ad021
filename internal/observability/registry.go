package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver retrieves a registered Observer by name, enabling
// configuration-driven observer selection.
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds a named Observer to the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// NoOpObserver discards every event. Used as the zero-overhead default
// in tests and in contexts where durable recording alone (via package
// eventlog) is sufficient.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(_ context.Context, _ Event) {}
