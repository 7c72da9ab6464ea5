package plan

import (
	"time"
)

// Status represents the lifecycle state of a whole plan.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusPartiallyFailed
)

// String returns the stable wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusPartiallyFailed:
		return "partially_failed"
	}
	return "unknown"
}

// Terminal reports whether the plan has settled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartiallyFailed
}

// Plan is an ordered, dependency-annotated set of steps derived from one
// classified intent. Steps keeps insertion order; that order is the
// deterministic tie-break when several steps become ready together.
// The dispatcher exclusively owns a plan for its lifetime; once the
// status is terminal the plan is immutable and retained only for audit.
type Plan struct {
	ID        string
	Steps     []*Step
	CreatedAt time.Time
	Status    Status
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
