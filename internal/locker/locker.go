// Package locker serializes mutating operations per project. The single
// working-tree checkout is process-wide shared state: no two operations
// may hold the repository checked out to different branches at once, so
// every checkout-performing operation must hold the project lock for its
// full duration, including the restore step.
package locker

import "sync"

// Keyed is a set of mutexes addressed by key. The zero value is not
// usable; construct with New.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty keyed lock set.
func New() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *Keyed) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *Keyed) Unlock(key string) {
	k.get(key).Unlock()
}

func (k *Keyed) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
