// Package dispatch runs a single execution plan to completion: it
// respects dependency order, dispatches ready steps concurrently,
// gates outcomes through the validator, and recovers from failures via
// the failure coordinator. Every transition is appended to the plan's
// execution log before the dispatcher acts on it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/execlog"
	"github.com/voxlab/agentcore/internal/intent"
	"github.com/voxlab/agentcore/internal/plan"
	"github.com/voxlab/agentcore/internal/registry"
)

// Dispatcher executes plans. One Run owns its plan exclusively for the
// plan's lifetime; a single coordinating goroutine per Run makes all
// graph transitions, while each dispatched step runs on its own
// goroutine and reports back over a fan-in channel.
type Dispatcher struct {
	reg         *registry.Registry
	validator   *Validator
	coordinator *FailureCoordinator
}

// New creates a Dispatcher.
func New(reg *registry.Registry, v *Validator, fc *FailureCoordinator) *Dispatcher {
	return &Dispatcher{reg: reg, validator: v, coordinator: fc}
}

// stepResult is the fan-in message from a step goroutine.
type stepResult struct {
	stepID string
	out    agent.Outcome
}

// Run executes the plan until every step settles, then assigns and
// returns the plan's terminal status. The context cancels all in-flight
// invocations; cancellation is non-retryable and fails the plan
// immediately without further dispatch.
func (d *Dispatcher) Run(ctx context.Context, p *plan.Plan, snap intent.Snapshot, lg *execlog.Log) (plan.Status, error) {
	g, err := plan.NewGraph(p)
	if err != nil {
		return p.Status, fmt.Errorf("%w: %v", plan.ErrInvalidPlan, err)
	}
	if _, err := g.Validate(); err != nil {
		return p.Status, fmt.Errorf("%w: %v", plan.ErrInvalidPlan, err)
	}

	p.Status = plan.StatusRunning
	lg.Append("", execlog.EventPlanStarted, fmt.Sprintf("%d steps", len(p.Steps)))

	// Buffered so a late completion never blocks against a coordinator
	// that has already moved on.
	results := make(chan stepResult, len(p.Steps))
	inflight := 0
	cancelled := false

	dispatchReady := func() {
		if cancelled {
			return
		}
		for _, s := range g.Ready() {
			// The coordinator claims the step before its goroutine
			// starts; a later Ready() call must never hand it out
			// again.
			g.SetStatus(s.ID, plan.StepDispatched)
			inflight++
			d.launch(ctx, g, s.ID, snap, lg, results, 0)
		}
	}

	dispatchReady()

	done := ctx.Done()
	for inflight > 0 {
		select {
		case res := <-results:
			inflight--
			redispatched := d.handleCompletion(ctx, g, res, snap, lg, results, &cancelled)
			if redispatched {
				inflight++
			}
			dispatchReady()

		case <-done:
			// Stop dispatching. In-flight invocations see the same
			// cancellation and settle as failed(Cancelled) through
			// the normal completion path.
			cancelled = true
			done = nil
		}
	}

	if cancelled {
		for _, s := range g.Steps() {
			if !s.Status.Terminal() {
				g.SetStatus(s.ID, plan.StepSkipped)
				lg.Append(s.ID, execlog.EventSkipped, "plan cancelled")
			}
		}
	}

	p.Status = terminalStatus(g, cancelled)
	lg.Append("", execlog.EventPlanFinished, p.Status.String())
	return p.Status, nil
}

// launch starts one invocation attempt on its own goroutine. delay is
// the backoff before a retry; the step sits in retry-pending until it
// elapses. The coordinator has already moved the step out of pending;
// the attempt counter is recorded when the invocation actually starts.
func (d *Dispatcher) launch(ctx context.Context, g *plan.Graph, stepID string, snap intent.Snapshot, lg *execlog.Log, results chan<- stepResult, delay time.Duration) {
	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				results <- stepResult{stepID: stepID, out: agent.Failure(agent.KindCancelled, "cancelled during backoff")}
				return
			}
		}

		s, ok := g.Step(stepID)
		if !ok {
			results <- stepResult{stepID: stepID, out: agent.Failure(agent.KindInternal, "step vanished from graph")}
			return
		}

		workers, err := d.reg.Resolve(s.Type)
		if err != nil {
			results <- stepResult{stepID: stepID, out: agent.Failure(agent.KindUnknownAgent, err.Error())}
			return
		}
		if s.WorkerIdx >= len(workers) {
			results <- stepResult{stepID: stepID, out: agent.Failure(agent.KindInternal, "no worker at candidate index")}
			return
		}
		w := workers[s.WorkerIdx]

		attempt, err := g.RecordAttempt(stepID)
		if err != nil {
			results <- stepResult{stepID: stepID, out: agent.Failure(agent.KindInternal, err.Error())}
			return
		}
		if attempt == 1 {
			lg.Append(stepID, execlog.EventDispatched, fmt.Sprintf("%s -> %s", s.Type, w.Name()))
		}

		task := agent.Task{
			StepID:  s.ID,
			PlanID:  lg.PlanID(),
			Type:    s.Type,
			Input:   s.Input,
			Attempt: attempt,
		}
		progress := func(c agent.Chunk) {
			lg.Append(stepID, execlog.EventProgress, c.Payload)
		}

		out := d.reg.Invoke(ctx, w, task, snap, progress)
		results <- stepResult{stepID: stepID, out: out}
	}()
}

// handleCompletion settles one attempt: validate on success, hand
// failures and rejections to the coordinator, act on its decision.
// Returns true when the step was re-dispatched (retry or reassignment).
func (d *Dispatcher) handleCompletion(ctx context.Context, g *plan.Graph, res stepResult, snap intent.Snapshot, lg *execlog.Log, results chan<- stepResult, cancelled *bool) bool {
	g.SetOutcome(res.stepID, res.out)
	s, ok := g.Step(res.stepID)
	if !ok {
		return false
	}

	out := res.out
	if out.Success {
		if verr := d.validator.Validate(s, out); verr != nil {
			lg.Append(s.ID, execlog.EventRejected, verr.Error())
			out = agent.Failure(agent.KindRejected, verr.Error())
			g.SetOutcome(s.ID, out)
		} else {
			lg.Append(s.ID, execlog.EventValidated, "")
			g.SetStatus(s.ID, plan.StepSucceeded)
			lg.Append(s.ID, execlog.EventSucceeded, "")
			d.coordinator.Forget(s.ID)
			return false
		}
	} else {
		lg.Append(s.ID, execlog.EventFailed, fmt.Sprintf("%s: %s", out.Kind, out.Detail))
	}

	g.SetStatus(s.ID, plan.StepFailed)

	remaining := d.remainingCandidates(s)
	decision := d.coordinator.Decide(s, out, remaining)

	// The decision goes to the log before the dispatcher acts on it, so
	// the audit trail reflects true dispatch history even under
	// concurrent completions.
	switch decision.Action {
	case ActionRetry:
		if ctx.Err() != nil {
			*cancelled = true
			break
		}
		lg.Append(s.ID, execlog.EventRetried, decision.Reason)
		g.SetStatus(s.ID, plan.StepRetryPending)
		d.launch(ctx, g, s.ID, snap, lg, results, decision.Delay)
		return true

	case ActionReassign:
		if ctx.Err() != nil {
			*cancelled = true
			break
		}
		lg.Append(s.ID, execlog.EventReassigned, decision.Reason)
		g.AdvanceWorker(s.ID)
		g.SetStatus(s.ID, plan.StepReassignPending)
		d.launch(ctx, g, s.ID, snap, lg, results, 0)
		return true
	}

	// Abort (or cancellation overriding recovery).
	reason := decision.Reason
	if decision.Action != ActionAbort {
		reason = "plan cancelled"
	}
	lg.Append(s.ID, execlog.EventAborted, reason)
	g.SetStatus(s.ID, plan.StepTerminallyFailed)
	d.coordinator.Forget(s.ID)

	for _, skippedID := range g.SkipDependents(s.ID) {
		lg.Append(skippedID, execlog.EventSkipped, fmt.Sprintf("dependency %s terminally failed", s.ID))
	}

	if out.Kind == agent.KindCancelled {
		*cancelled = true
	}
	return false
}

// remainingCandidates counts fallback workers beyond the step's current
// assignment.
func (d *Dispatcher) remainingCandidates(s *plan.Step) int {
	workers, err := d.reg.Resolve(s.Type)
	if err != nil {
		return 0
	}
	remaining := len(workers) - s.WorkerIdx - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// terminalStatus derives the plan's terminal status from its settled
// steps: completed when everything succeeded, failed when nothing did
// (or the plan was cancelled), partially-failed when independent
// branches completed alongside terminal failures.
func terminalStatus(g *plan.Graph, cancelled bool) plan.Status {
	_, succeeded, failed := g.Settled()

	if cancelled {
		return plan.StatusFailed
	}
	if failed == 0 {
		return plan.StatusCompleted
	}
	if succeeded > 0 {
		return plan.StatusPartiallyFailed
	}
	return plan.StatusFailed
}
