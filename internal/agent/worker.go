package agent

import (
	"context"

	"github.com/voxlab/agentcore/internal/intent"
)

// Worker is the uniform contract every capability provider implements.
// The orchestration core treats Execute as an opaque function: provider
// semantics (prompting, code generation, deployment calls) are invisible
// to it. Execute must honor ctx cancellation and return rather than block
// past the deadline.
type Worker interface {
	Execute(ctx context.Context, task Task, snapshot intent.Snapshot) Outcome
	Name() string
}

// StreamingWorker is optionally implemented by workers that can emit
// partial payloads before the final Outcome. The dispatcher only awaits
// the final Outcome; chunks feed the execution log's progress stream.
type StreamingWorker interface {
	Worker
	ExecuteStream(ctx context.Context, task Task, snapshot intent.Snapshot, progress ProgressFunc) Outcome
}
