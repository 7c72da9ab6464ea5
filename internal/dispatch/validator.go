package dispatch

import (
	"fmt"
	"strings"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/plan"
)

// Rejection is a validator refusal. Not a crash: the dispatcher routes
// it to the failure coordinator as if the execution itself had failed,
// with the reason attached to the log entry.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("outcome rejected: %s", r.Reason)
}

// CheckFunc is a per-agent-type structural acceptance check, run after
// the generic checks pass.
type CheckFunc func(step *plan.Step, out agent.Outcome) error

// Validator gates worker outcomes before downstream steps may consume
// them. Checks: the outcome reports success, the payload is non-empty,
// then a type-specific structural check if one is registered.
type Validator struct {
	checks map[agent.Type]CheckFunc
}

// NewValidator returns a validator with the built-in structural checks
// for the default agent types.
func NewValidator() *Validator {
	return &Validator{
		checks: map[agent.Type]CheckFunc{
			agent.TypePlanner:    checkPlannerOutcome,
			agent.TypeCoder:      checkCoderOutcome,
			agent.TypeDeployment: checkDeploymentOutcome,
		},
	}
}

// RegisterCheck installs or replaces the structural check for a type.
// This is how new capability types plug in acceptance criteria.
func (v *Validator) RegisterCheck(t agent.Type, check CheckFunc) {
	v.checks[t] = check
}

// Validate accepts or rejects a worker outcome. A nil return is
// acceptance; otherwise the error is a *Rejection carrying the reason.
func (v *Validator) Validate(step *plan.Step, out agent.Outcome) error {
	if !out.Success {
		return &Rejection{Reason: fmt.Sprintf("worker reported failure: %s", out.Detail)}
	}
	if strings.TrimSpace(out.Payload) == "" {
		return &Rejection{Reason: "empty payload"}
	}
	if check, ok := v.checks[step.Type]; ok {
		if err := check(step, out); err != nil {
			return &Rejection{Reason: err.Error()}
		}
	}
	return nil
}

// checkPlannerOutcome requires the plan text to enumerate at least one
// step: a list marker or numbered item.
func checkPlannerOutcome(_ *plan.Step, out agent.Outcome) error {
	for _, line := range strings.Split(out.Payload, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			return nil
		}
		if len(trimmed) > 2 && trimmed[0] >= '1' && trimmed[0] <= '9' && (trimmed[1] == '.' || trimmed[1] == ')') {
			return nil
		}
	}
	return fmt.Errorf("plan enumerates no steps")
}

// checkCoderOutcome requires a fenced code block or something that
// plausibly parses as code.
func checkCoderOutcome(_ *plan.Step, out agent.Outcome) error {
	p := out.Payload
	if strings.Contains(p, "```") {
		return nil
	}
	for _, marker := range []string{"func ", "def ", "class ", "import ", "const ", "=>", "{"} {
		if strings.Contains(p, marker) {
			return nil
		}
	}
	return fmt.Errorf("payload contains no code")
}

// checkDeploymentOutcome requires the outcome to reference the deployed
// target.
func checkDeploymentOutcome(_ *plan.Step, out agent.Outcome) error {
	p := strings.ToLower(out.Payload)
	if strings.Contains(p, "://") || strings.Contains(p, "deployed") {
		return nil
	}
	return fmt.Errorf("no deployment target in payload")
}
