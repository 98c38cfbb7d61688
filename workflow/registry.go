package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// RunnerFunc is a workflow handler with its input still encoded.
type RunnerFunc func(wf *Workflow, input []byte) error

// Registry maps workflow names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]RunnerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]RunnerFunc)}
}

// RegisterDefinition registers def, replacing any handler of the same
// name. The input is decoded from JSON before the typed handler runs.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	fn := func(wf *Workflow, input []byte) error {
		var in T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("unmarshal input for workflow %q: %w", def.Name, err)
			}
		}
		return def.Handler(wf, in)
	}

	r.mu.Lock()
	r.handlers[def.Name] = fn
	r.mu.Unlock()
}

// Get returns the handler for name.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names returns the registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
