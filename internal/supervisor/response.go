package supervisor

import (
	"fmt"
	"strings"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/plan"
)

// formatResponse aggregates step outputs in dependency order and
// itemizes failures. Steps keep plan insertion order, which the builder
// guarantees is a valid dependency order.
func formatResponse(p *plan.Plan, status plan.Status) *AgentResponse {
	resp := &AgentResponse{
		PlanID: p.ID,
		Status: status,
	}

	var b strings.Builder
	for _, step := range p.Steps {
		switch step.Status {
		case plan.StepSucceeded:
			resp.Results = append(resp.Results, StepResult{
				StepID:  step.ID,
				Type:    step.Type,
				Payload: step.Outcome.Payload,
			})
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "## %s\n%s", step.Type, step.Outcome.Payload)

		case plan.StepTerminallyFailed, plan.StepSkipped:
			failure := StepFailure{
				StepID:   step.ID,
				Type:     step.Type,
				Attempts: step.Attempts,
			}
			if step.Outcome != nil {
				failure.Kind = step.Outcome.Kind
				failure.Detail = step.Outcome.Detail
			} else {
				failure.Detail = "skipped: dependency failed"
			}
			resp.Failures = append(resp.Failures, failure)
		}
	}

	if len(resp.Failures) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## Failed steps\n")
		for _, f := range resp.Failures {
			kind := f.Kind.String()
			if f.Kind == agent.KindNone {
				kind = "skipped"
			}
			fmt.Fprintf(&b, "- %s (%s): %s [%d attempts]\n", f.Type, kind, f.Detail, f.Attempts)
		}
	}

	resp.Output = b.String()
	return resp
}
