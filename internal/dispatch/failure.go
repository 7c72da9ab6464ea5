package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/plan"
)

// Action is the failure coordinator's verdict for a failed step.
type Action int

const (
	ActionRetry    Action = iota // same worker, after Decision.Delay
	ActionReassign               // next candidate worker, immediately
	ActionAbort                  // step is terminally failed
)

// String returns the log name of the action.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionReassign:
		return "reassign"
	case ActionAbort:
		return "abort"
	}
	return "unknown"
}

// Decision is the recovery verdict for one step failure. The dispatcher
// appends it to the execution log before acting on it, so the log
// always reflects true dispatch history.
type Decision struct {
	Action Action
	Delay  time.Duration // backoff before retry; zero otherwise
	Reason string
}

// FailureCoordinator decides retry vs. reassignment vs. abort when a
// step fails or the validator rejects its outcome.
//
// Policy: transient kinds (Timeout, Unavailable) retry the same worker
// up to MaxRetries times with exponential backoff; on exhaustion the
// step is reassigned to the next registry candidate, with a fresh retry
// budget. Validation rejections skip same-worker retries and go
// straight to reassignment. Fatal kinds (InvalidInput, UnknownAgent,
// Cancelled) and exhausted candidate lists abort.
type FailureCoordinator struct {
	mu         sync.Mutex
	maxRetries int
	initial    time.Duration
	multiplier float64
	perStep    map[string]*stepPolicy
}

// stepPolicy tracks the retry budget and backoff schedule for the
// step's current worker assignment.
type stepPolicy struct {
	retries int
	bo      backoff.BackOff
}

// NewFailureCoordinator builds a coordinator from the retry config.
// Zero-valued fields fall back to 2 retries, 1s base, factor 2.
func NewFailureCoordinator(cfg config.RetryConfig) *FailureCoordinator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialIntervalMS <= 0 {
		cfg.InitialIntervalMS = 1000
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}

	return &FailureCoordinator{
		maxRetries: cfg.MaxRetries,
		initial:    time.Duration(cfg.InitialIntervalMS) * time.Millisecond,
		multiplier: cfg.Multiplier,
		perStep:    make(map[string]*stepPolicy),
	}
}

// Decide returns the recovery verdict for a failed outcome.
// remainingCandidates is how many fallback workers the registry still
// holds for this step beyond the current assignment.
func (fc *FailureCoordinator) Decide(step *plan.Step, out agent.Outcome, remainingCandidates int) Decision {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	kind := out.Kind

	if kind.Fatal() {
		return Decision{
			Action: ActionAbort,
			Reason: fmt.Sprintf("%s is not retryable", kind),
		}
	}

	// Validation rejections say the worker ran fine but produced an
	// unacceptable result; a different worker is the only recovery.
	if kind == agent.KindRejected {
		return fc.reassignOrAbort(step, remainingCandidates, "outcome rejected by validator")
	}

	if kind.Transient() {
		pol := fc.policy(step.ID)
		if pol.retries < fc.maxRetries {
			pol.retries++
			return Decision{
				Action: ActionRetry,
				Delay:  pol.bo.NextBackOff(),
				Reason: fmt.Sprintf("%s, retry %d of %d", kind, pol.retries, fc.maxRetries),
			}
		}
		return fc.reassignOrAbort(step, remainingCandidates, fmt.Sprintf("retries exhausted after %s", kind))
	}

	// Internal and unclassified failures get no same-worker retries.
	return fc.reassignOrAbort(step, remainingCandidates, fmt.Sprintf("worker error: %s", out.Detail))
}

// reassignOrAbort hands the step to the next candidate if one exists,
// resetting the retry budget; otherwise aborts.
func (fc *FailureCoordinator) reassignOrAbort(step *plan.Step, remainingCandidates int, reason string) Decision {
	if remainingCandidates > 0 {
		delete(fc.perStep, step.ID) // fresh budget for the new worker
		return Decision{Action: ActionReassign, Reason: reason}
	}
	return Decision{
		Action: ActionAbort,
		Reason: fmt.Sprintf("%s; no candidates remain", reason),
	}
}

// Forget drops retained per-step state once a step settles.
func (fc *FailureCoordinator) Forget(stepID string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.perStep, stepID)
}

// policy returns (creating if needed) the step's retry state.
// Randomization is disabled so the schedule is exactly base, base*factor,
// ... as declared: deterministic and assertable.
func (fc *FailureCoordinator) policy(stepID string) *stepPolicy {
	pol, ok := fc.perStep[stepID]
	if !ok {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = fc.initial
		bo.Multiplier = fc.multiplier
		bo.RandomizationFactor = 0
		bo.MaxInterval = time.Hour
		bo.MaxElapsedTime = 0 // retry budget is counted, not timed
		bo.Reset()
		pol = &stepPolicy{bo: bo}
		fc.perStep[stepID] = pol
	}
	return pol
}
