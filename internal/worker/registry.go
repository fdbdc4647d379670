package worker

import (
	"context"
	"sort"
	"sync"
)

// Handler is a unit of queued work. Handlers are serialized with
// encoding/json when enqueued and decoded into a fresh value before they
// run, so their exported fields are their arguments.
type Handler interface {
	Handle(ctx context.Context) error
}

// Registry maps handler names to factories producing empty handler values.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Handler)}
}

// Register binds name to factory, replacing any earlier binding.
// The factory should return a pointer so the payload can be decoded into it.
func (r *Registry) Register(name string, factory func() Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New returns a fresh handler for name.
func (r *Registry) New(name string) (Handler, bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names lists the registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
