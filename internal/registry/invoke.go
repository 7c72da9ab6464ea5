package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/intent"
)

// Invoke runs one worker invocation under the agent type's contract:
// admission through the type's concurrency limit (queueing while at
// capacity), a hard deadline of Descriptor.Timeout, and the worker's
// circuit breaker. The capability call is cancelled at the deadline and
// Invoke returns a Timeout outcome rather than blocking; a worker that
// ignores cancellation is abandoned on its goroutine.
//
// progress may be nil; when set and the worker streams, chunks are
// forwarded on the worker's goroutine.
func (r *Registry) Invoke(ctx context.Context, w agent.Worker, task agent.Task, snap intent.Snapshot, progress agent.ProgressFunc) agent.Outcome {
	d, err := r.Descriptor(task.Type)
	if err != nil {
		return agent.Failure(agent.KindUnknownAgent, err.Error())
	}

	// Queue for an admission slot. Deadline and cancellation apply
	// while queued: a step stuck behind capacity can still time out.
	if err := r.admission.acquire(ctx, task.Type); err != nil {
		return outcomeFromContextErr(ctx, err)
	}
	defer r.admission.release(task.Type)

	callCtx := ctx
	var cancel context.CancelFunc
	if d.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cb := r.breakers.get(w.Name())

	done := make(chan agent.Outcome, 1)
	go func() {
		result, err := cb.Execute(func() (interface{}, error) {
			out := execute(callCtx, w, task, snap, progress)
			return out, breakerErr(out)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				done <- agent.Failure(agent.KindUnavailable, fmt.Sprintf("worker %q circuit open", w.Name()))
				return
			}
			// breakerErr mirrors the outcome, so the outcome itself
			// still carries the authoritative kind and detail.
			if out, ok := result.(agent.Outcome); ok {
				done <- out
				return
			}
			done <- agent.Failure(agent.KindInternal, err.Error())
			return
		}
		done <- result.(agent.Outcome)
	}()

	select {
	case out := <-done:
		if !out.Success && out.Kind == agent.KindNone {
			out.Kind = agent.KindInternal
		}
		return out
	case <-callCtx.Done():
		return outcomeFromContextErr(callCtx, callCtx.Err())
	}
}

// execute dispatches to the streaming contract when available.
func execute(ctx context.Context, w agent.Worker, task agent.Task, snap intent.Snapshot, progress agent.ProgressFunc) agent.Outcome {
	if sw, ok := w.(agent.StreamingWorker); ok && progress != nil {
		return sw.ExecuteStream(ctx, task, snap, progress)
	}
	return w.Execute(ctx, task, snap)
}

// breakerErr converts a failed outcome into an error so the circuit
// breaker counts it. Only kinds that indicate a sick worker trip the
// breaker; rejections, bad input, and caller cancellation say nothing
// about worker health.
func breakerErr(out agent.Outcome) error {
	if out.Success {
		return nil
	}
	switch out.Kind {
	case agent.KindTimeout, agent.KindUnavailable, agent.KindInternal:
		return errors.New(out.Detail)
	}
	return nil
}

// outcomeFromContextErr maps a context error to the right failure kind:
// deadline expiry is a Timeout (retryable), caller cancellation is
// Cancelled (fatal for the step and the plan).
func outcomeFromContextErr(ctx context.Context, err error) agent.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.Failure(agent.KindTimeout, "invocation deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return agent.Failure(agent.KindCancelled, "invocation cancelled")
	}
	if ctx.Err() != nil {
		return agent.Failure(agent.KindCancelled, ctx.Err().Error())
	}
	return agent.Failure(agent.KindInternal, err.Error())
}
