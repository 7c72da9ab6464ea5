package registry

import (
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry manages per-worker circuit breakers. A worker that
// fails repeatedly trips its breaker; invocations while the breaker is
// open fail fast as Unavailable, which the failure coordinator treats
// as transient and eventually routes around via reassignment.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the circuit breaker for the named worker, creating it on
// first use.
func (r *breakerRegistry) get(workerName string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[workerName]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        workerName,
		MaxRequests: 3,                // test requests allowed in half-open state
		Interval:    0,                // don't clear counts automatically
		Timeout:     30 * time.Second, // stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		// Which outcomes count as failures is decided upstream by
		// breakerErr: caller cancellation and rejections come through
		// as nil.
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	r.breakers[workerName] = cb
	return cb
}
