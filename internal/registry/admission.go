package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// admissionTable enforces per-agent-type concurrency limits. Each type
// gets its own weighted semaphore: a step whose type is at capacity
// queues on Acquire rather than dispatching, still under the caller's
// context so deadlines and cancellation apply while queued.
type admissionTable struct {
	mu   sync.Mutex
	sems map[interface{}]*semaphore.Weighted
}

func newAdmissionTable() *admissionTable {
	return &admissionTable{
		sems: make(map[interface{}]*semaphore.Weighted),
	}
}

// add creates the semaphore for a key on first registration.
func (a *admissionTable) add(key interface{}, limit int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.sems[key]; !exists {
		a.sems[key] = semaphore.NewWeighted(limit)
	}
}

// acquire blocks until a slot for the key is free or ctx is done.
func (a *admissionTable) acquire(ctx context.Context, key interface{}) error {
	a.mu.Lock()
	sem, exists := a.sems[key]
	a.mu.Unlock()

	if !exists {
		return nil // unlimited for unregistered keys
	}
	return sem.Acquire(ctx, 1)
}

// release frees a slot for the key.
func (a *admissionTable) release(key interface{}) {
	a.mu.Lock()
	sem, exists := a.sems[key]
	a.mu.Unlock()

	if exists {
		sem.Release(1)
	}
}
