package observability

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Registry resolves observers by name so configuration files can select one
// ("observer: slog"). Every Registry starts with "noop" and "slog" entries;
// the slog entry writes to the logger passed to NewRegistry.
type Registry struct {
	observers map[string]Observer
	mu        sync.RWMutex
}

// NewRegistry creates a Registry whose "slog" observer writes to logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		observers: map[string]Observer{
			"noop": NoOpObserver{},
			"slog": NewSlogObserver(logger),
		},
	}
}

// Get returns a registered observer by name.
func (r *Registry) Get(name string) (Observer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, exists := r.observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// Register adds or replaces a named observer.
func (r *Registry) Register(name string, observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers[name] = observer
}

// Names lists the registered observer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.observers))
	for name := range r.observers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
