package plan

import (
	"github.com/voxlab/agentcore/internal/agent"
)

// StepStatus represents the current state of a plan step.
type StepStatus int

const (
	StepPending          StepStatus = iota // waiting for dependencies
	StepDispatched                         // handed to a worker, in flight
	StepRetryPending                       // failed, waiting out backoff before same-worker retry
	StepReassignPending                    // failed, about to be handed to a fallback worker
	StepSucceeded                          // outcome accepted by the validator
	StepFailed                             // last attempt failed, recovery not yet decided
	StepTerminallyFailed                   // recovery exhausted or failure non-retryable
	StepSkipped                            // never dispatched: a dependency terminally failed
)

// String returns the stable wire name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepDispatched:
		return "dispatched"
	case StepRetryPending:
		return "retry_pending"
	case StepReassignPending:
		return "reassign_pending"
	case StepSucceeded:
		return "succeeded"
	case StepFailed:
		return "failed"
	case StepTerminallyFailed:
		return "terminally_failed"
	case StepSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the step can never transition again.
func (s StepStatus) Terminal() bool {
	return s == StepSucceeded || s == StepTerminallyFailed || s == StepSkipped
}

// Step is one sub-task within a plan, bound to one agent type.
// Created by the Builder; mutated only through the Graph by the
// dispatcher and failure coordinator. Exactly one in-flight execution
// owns a step at a time.
type Step struct {
	ID        string
	Type      agent.Type
	Input     map[string]string
	DependsOn []string // step IDs within the same plan; must form a DAG
	Status    StepStatus
	Attempts  int            // invocation count across retries and reassignments
	WorkerIdx int            // index into the registry's candidate list
	Outcome   *agent.Outcome // last outcome, nil until first completion
}
