// Package worker provides capability provider implementations: an
// in-process func adapter and a subprocess-backed command worker. The
// orchestration core sees both only through the agent.Worker contract.
package worker

import (
	"context"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/intent"
)

// Func adapts an ordinary function into an agent.Worker. Used for
// embedding capabilities in-process and for tests.
type Func struct {
	WorkerName string
	Fn         func(ctx context.Context, task agent.Task, snap intent.Snapshot) agent.Outcome
}

// Name returns the worker's registry name.
func (f Func) Name() string {
	return f.WorkerName
}

// Execute runs the wrapped function.
func (f Func) Execute(ctx context.Context, task agent.Task, snap intent.Snapshot) agent.Outcome {
	return f.Fn(ctx, task, snap)
}

// FromConfig builds the workers declared for one agent, in fallback
// order. pm may be nil to skip subprocess tracking.
func FromConfig(cfgs []config.WorkerConfig, pm *ProcessManager) []agent.Worker {
	workers := make([]agent.Worker, 0, len(cfgs))
	for _, wc := range cfgs {
		workers = append(workers, NewCommandWorker(wc, pm))
	}
	return workers
}
