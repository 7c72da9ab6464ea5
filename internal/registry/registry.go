// Package registry maps agent types to interchangeable worker
// implementations and invokes them under the descriptor's deadline and
// concurrency contract.
package registry

import (
	"fmt"
	"sync"

	"github.com/voxlab/agentcore/internal/agent"
)

// Registry is the capability registry. Register is called at startup;
// after that the registry is read-mostly and safe for concurrent use by
// any number of plans.
type Registry struct {
	mu        sync.RWMutex
	entries   map[agent.Type]*entry
	admission *admissionTable
	breakers  *breakerRegistry
}

type entry struct {
	descriptor agent.Descriptor
	workers    []agent.Worker // first is primary, rest are reassignment fallbacks
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:   make(map[agent.Type]*entry),
		admission: newAdmissionTable(),
		breakers:  newBreakerRegistry(),
	}
}

// Register binds workers to an agent type. The first worker is the
// primary; the rest are fallback candidates for reassignment, in order.
// Registering the same type again appends further fallbacks.
func (r *Registry) Register(d agent.Descriptor, workers ...agent.Worker) error {
	if len(workers) == 0 {
		return fmt.Errorf("registering %q: at least one worker required", d.Type)
	}
	if d.MaxConcurrency <= 0 {
		d.MaxConcurrency = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[d.Type]
	if !exists {
		e = &entry{descriptor: d}
		r.entries[d.Type] = e
		r.admission.add(d.Type, int64(d.MaxConcurrency))
	}
	e.workers = append(e.workers, workers...)
	return nil
}

// Resolve returns the worker candidates for the agent type: primary
// first, fallbacks after. Fails with agent.ErrUnknownAgentType if no
// worker is registered.
func (r *Registry) Resolve(t agent.Type) ([]agent.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[t]
	if !exists {
		return nil, fmt.Errorf("%w: %q", agent.ErrUnknownAgentType, t)
	}

	workers := make([]agent.Worker, len(e.workers))
	copy(workers, e.workers)
	return workers, nil
}

// Known reports whether at least one worker is registered for the type.
func (r *Registry) Known(t agent.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[t]
	return exists
}

// Descriptor returns the registered descriptor for the type.
func (r *Registry) Descriptor(t agent.Type) (agent.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[t]
	if !exists {
		return agent.Descriptor{}, fmt.Errorf("%w: %q", agent.ErrUnknownAgentType, t)
	}
	return e.descriptor, nil
}

// Types returns all registered agent types.
func (r *Registry) Types() []agent.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]agent.Type, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	return types
}
