package engine

import "sync"

// lockRegistry hands out one mutex per instance ID so that at most one
// advance is in flight per instance within this process. Entries are kept
// for the life of the process; instance counts are bounded by the store.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) forInstance(instanceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, found := r.locks[instanceID]
	if !found {
		lock = &sync.Mutex{}
		r.locks[instanceID] = lock
	}

	return lock
}
