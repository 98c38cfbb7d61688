package rsvp

import (
	"context"
	"sync"
)

// Registry hands out one Actor per location tag, creating it on first
// use with the registry's options.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*Actor
	opts   []Option
}

// NewRegistry creates a registry whose actors are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{actors: make(map[string]*Actor), opts: opts}
}

// Get returns the actor for tag.
func (r *Registry) Get(ctx context.Context, tag string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[tag]; ok {
		return a, nil
	}
	a, err := New(ctx, tag, r.opts...)
	if err != nil {
		return nil, err
	}
	r.actors[tag] = a
	return a, nil
}

// Close stops every actor.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tag, a := range r.actors {
		a.Close()
		delete(r.actors, tag)
	}
}
