package worker

import (
	"context"
	"fmt"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/intent"
)

// Builtin returns an in-process demo worker for the given agent type.
// These exist so the binary is usable with zero configuration; real
// deployments configure subprocess workers instead.
func Builtin(t agent.Type) agent.Worker {
	return Func{
		WorkerName: fmt.Sprintf("builtin-%s", t),
		Fn: func(ctx context.Context, task agent.Task, snap intent.Snapshot) agent.Outcome {
			return agent.Outcome{Success: true, Payload: builtinPayload(t, task)}
		},
	}
}

func builtinPayload(t agent.Type, task agent.Task) string {
	switch t {
	case agent.TypePlanner:
		return fmt.Sprintf("Project plan for %q:\n- scaffold project structure\n- implement core features\n- add tests", task.Input["intent"])
	case agent.TypeCoder:
		return "```\nfunc main() {\n\t// generated scaffold\n}\n```"
	case agent.TypeDeployment:
		return "deployed to https://example.invalid/preview"
	default:
		return fmt.Sprintf("Here is an explanation for %q.", task.Input["intent"])
	}
}
