// Package abort tracks cancellation handles for in-flight operations so
// a later request can cut one short (e.g. abandoning a stream for a
// project/branch pair).
package abort

import (
	"context"
	"sync"
)

type entry struct {
	cancel context.CancelFunc
}

// Registry is a process-wide mapping from a logical key to the
// cancellation handle of the operation currently running under it.
// Registering a key cancels and replaces any previous holder; completed
// operations remove themselves via the release function.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*entry)}
}

// Register derives a cancellable context from ctx and records its cancel
// handle under key. A previous registration under the same key is
// cancelled and replaced. The caller must call the returned release
// function when the operation completes.
func (r *Registry) Register(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	e := &entry{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.handles[key]; ok {
		prev.cancel()
	}
	r.handles[key] = e
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		// Only remove our own handle; a replacement may already be in.
		if cur, ok := r.handles[key]; ok && cur == e {
			delete(r.handles, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Cancel aborts the operation registered under key, if any.
// It reports whether a registration was found.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	e, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

// Len returns the number of in-flight registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
