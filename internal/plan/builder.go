package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/intent"
)

// ErrInvalidPlan is returned when a built plan would be unexecutable:
// cyclic dependencies or an agent type with no registered worker.
// Fatal to plan construction; nothing is dispatched.
var ErrInvalidPlan = errors.New("invalid plan")

// CapabilitySet answers whether an agent type has at least one
// registered worker. Satisfied by registry.Registry.
type CapabilitySet interface {
	Known(t agent.Type) bool
}

// Route maps one intent type to the ordered agent types serving it.
// When is an optional predicate over the intent; a route whose When
// returns false is passed over in favor of the default route. This is
// the extension seam for runtime-dependent agent selection.
type Route struct {
	Agents      []agent.Type
	Independent bool // no dependency edges between steps; dispatched in parallel
	When        func(intent.Intent) bool
}

// Builder turns a classified intent into an executable plan.
type Builder struct {
	routes       map[intent.IntentType]Route
	defaultRoute Route
	capabilities CapabilitySet
}

// NewBuilder creates a Builder over the given route table. Unknown
// intent types fall back to a single tutor step, keeping the table
// total. capabilities may be nil to skip registration checks (tests).
func NewBuilder(routes map[intent.IntentType]Route, capabilities CapabilitySet) *Builder {
	return &Builder{
		routes:       routes,
		defaultRoute: Route{Agents: []agent.Type{agent.TypeTutor}},
		capabilities: capabilities,
	}
}

// RoutesFromConfig converts the configuration route table.
func RoutesFromConfig(routes map[string]config.RouteConfig) map[intent.IntentType]Route {
	out := make(map[intent.IntentType]Route, len(routes))
	for name, rc := range routes {
		agents := make([]agent.Type, 0, len(rc.Agents))
		for _, a := range rc.Agents {
			agents = append(agents, agent.Type(a))
		}
		out[intent.IntentType(name)] = Route{Agents: agents, Independent: rc.Independent}
	}
	return out
}

// Build creates a plan for the intent: one step per required agent type,
// chained with dependency edges in route order unless the route is
// independent. The result is validated before it is returned; a cyclic
// or unregistered-agent plan fails with ErrInvalidPlan and is never
// dispatched. Building twice from the same intent yields structurally
// identical plans with fresh IDs.
func (b *Builder) Build(in intent.Intent, cc *intent.ConversationContext) (*Plan, error) {
	route := b.route(in)
	if len(route.Agents) == 0 {
		return nil, fmt.Errorf("%w: route for intent %q has no agents", ErrInvalidPlan, in.Type)
	}

	p := &Plan{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}

	var prevID string
	for _, t := range route.Agents {
		if b.capabilities != nil && !b.capabilities.Known(t) {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidPlan, agent.ErrUnknownAgentType, t)
		}

		step := &Step{
			ID:     uuid.NewString(),
			Type:   t,
			Input:  stepInput(in, cc),
			Status: StepPending,
		}
		if prevID != "" && !route.Independent {
			step.DependsOn = []string{prevID}
		}
		p.Steps = append(p.Steps, step)
		prevID = step.ID
	}

	g, err := NewGraph(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if _, err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	return p, nil
}

// route picks the route for the intent, honoring When predicates and
// falling back to the default tutor route.
func (b *Builder) route(in intent.Intent) Route {
	r, ok := b.routes[in.Type]
	if !ok {
		return b.defaultRoute
	}
	if r.When != nil && !r.When(in) {
		return b.defaultRoute
	}
	return r
}

// stepInput flattens the intent's slots plus session identity into the
// step's read-only input payload.
func stepInput(in intent.Intent, cc *intent.ConversationContext) map[string]string {
	input := make(map[string]string, len(in.Slots)+3)
	for k, v := range in.Slots {
		input[k] = v
	}
	input["intent"] = string(in.Type)
	if cc != nil {
		input["project_id"] = cc.ProjectID
		input["language"] = cc.Language
	}
	return input
}
