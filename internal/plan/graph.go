package plan

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/voxlab/agentcore/internal/agent"
)

// Graph wraps a plan's steps with dependency bookkeeping and guarded
// state transitions. Steps stay in plan insertion order so that Ready()
// is deterministic when several steps clear together.
type Graph struct {
	mu         sync.RWMutex
	plan       *Plan
	index      map[string]*Step    // step ID -> step
	dependents map[string][]string // step ID -> steps that depend on it
}

// NewGraph builds a Graph over the plan's steps. Duplicate step IDs are
// rejected; dependency existence and acyclicity are checked by Validate.
func NewGraph(p *Plan) (*Graph, error) {
	g := &Graph{
		plan:       p,
		index:      make(map[string]*Step, len(p.Steps)),
		dependents: make(map[string][]string),
	}

	for _, s := range p.Steps {
		if _, exists := g.index[s.ID]; exists {
			return nil, fmt.Errorf("step with ID %q already exists", s.ID)
		}
		g.index[s.ID] = s
		for _, depID := range s.DependsOn {
			g.dependents[depID] = append(g.dependents[depID], s.ID)
		}
	}

	return g, nil
}

// Validate runs topological sort over the dependency edges.
// Returns ordered step IDs, or an error if a step references a
// non-existent dependency or the edges contain a cycle.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, s := range g.index {
		for _, depID := range s.DependsOn {
			if _, exists := g.index[depID]; !exists {
				return nil, fmt.Errorf("step %q depends on non-existent step %q", id, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, s := range g.plan.Steps {
		if len(s.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, s.ID})
			continue
		}
		for _, depID := range s.DependsOn {
			edges = append(edges, toposort.Edge{depID, s.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.index) {
		missing := []string{}
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for id := range g.index {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d steps: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns all pending steps whose dependencies have ALL succeeded,
// in plan insertion order.
func (g *Graph) Ready() []*Step {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := []*Step{}
	for _, s := range g.plan.Steps {
		if s.Status != StepPending {
			continue
		}

		cleared := true
		for _, depID := range s.DependsOn {
			dep, exists := g.index[depID]
			if !exists || dep.Status != StepSucceeded {
				cleared = false
				break
			}
		}

		if cleared {
			ready = append(ready, cloneStep(s))
		}
	}
	return ready
}

// SetStatus transitions a step. Transitions out of a terminal status are
// rejected.
func (g *Graph) SetStatus(stepID string, status StepStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.index[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("step %q is terminal (%s)", stepID, s.Status)
	}

	s.Status = status
	return nil
}

// RecordAttempt increments the step's attempt counter and marks it
// dispatched. Returns the new attempt number.
func (g *Graph) RecordAttempt(stepID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.index[stepID]
	if !exists {
		return 0, fmt.Errorf("step %q not found", stepID)
	}

	s.Attempts++
	s.Status = StepDispatched
	return s.Attempts, nil
}

// AdvanceWorker moves the step to the next reassignment candidate and
// returns the new candidate index.
func (g *Graph) AdvanceWorker(stepID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.index[stepID]
	if !exists {
		return 0, fmt.Errorf("step %q not found", stepID)
	}

	s.WorkerIdx++
	return s.WorkerIdx, nil
}

// SetOutcome records the last outcome of a step.
func (g *Graph) SetOutcome(stepID string, out agent.Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.index[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}

	s.Outcome = &out
	return nil
}

// SkipDependents marks every transitive dependent of the given step as
// skipped, so it is never dispatched. Already-terminal dependents are
// left alone. Returns the IDs skipped, in plan insertion order.
func (g *Graph) SkipDependents(stepID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	doomed := map[string]bool{}
	frontier := []string{stepID}
	for len(frontier) > 0 {
		next := []string{}
		for _, id := range frontier {
			for _, depID := range g.dependents[id] {
				if !doomed[depID] {
					doomed[depID] = true
					next = append(next, depID)
				}
			}
		}
		frontier = next
	}

	skipped := []string{}
	for _, s := range g.plan.Steps {
		if doomed[s.ID] && !s.Status.Terminal() {
			s.Status = StepSkipped
			skipped = append(skipped, s.ID)
		}
	}
	return skipped
}

// Step returns a copy of the step with the given ID.
func (g *Graph) Step(stepID string) (*Step, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, exists := g.index[stepID]
	if !exists {
		return nil, false
	}
	return cloneStep(s), true
}

// Steps returns copies of all steps in plan insertion order.
func (g *Graph) Steps() []*Step {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Step, 0, len(g.plan.Steps))
	for _, s := range g.plan.Steps {
		out = append(out, cloneStep(s))
	}
	return out
}

// Settled reports whether every step has reached a terminal status, and
// the counts of succeeded and terminally-failed/skipped steps.
func (g *Graph) Settled() (done bool, succeeded int, failed int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	done = true
	for _, s := range g.plan.Steps {
		switch s.Status {
		case StepSucceeded:
			succeeded++
		case StepTerminallyFailed, StepSkipped:
			failed++
		default:
			done = false
		}
	}
	return done, succeeded, failed
}

func cloneStep(s *Step) *Step {
	if s == nil {
		return nil
	}

	cp := *s
	if s.DependsOn != nil {
		cp.DependsOn = append([]string(nil), s.DependsOn...)
	}
	if s.Input != nil {
		cp.Input = make(map[string]string, len(s.Input))
		for k, v := range s.Input {
			cp.Input[k] = v
		}
	}
	if s.Outcome != nil {
		out := *s.Outcome
		cp.Outcome = &out
	}
	return &cp
}
