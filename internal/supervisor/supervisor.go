// Package supervisor is the public entry point of the orchestration
// core: it accepts a user request, builds a plan, runs it, and returns
// a validated, formatted result. One Supervisor instance per deployment
// owns all orchestration state; there are no ambient singletons.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/dispatch"
	"github.com/voxlab/agentcore/internal/execlog"
	"github.com/voxlab/agentcore/internal/intent"
	"github.com/voxlab/agentcore/internal/persistence"
	"github.com/voxlab/agentcore/internal/plan"
)

// ConfigError is the user-facing error for fatal construction problems:
// unknown agent types and invalid (cyclic) plans. Nothing is dispatched
// when one is returned.
type ConfigError struct {
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Request is one user request. Either Intent is pre-classified by the
// caller, or Text is classified through the supervisor's classifier.
type Request struct {
	UserID    string
	ProjectID string
	SessionID string
	Language  string
	Text      string
	Intent    *intent.Intent
}

// StepResult is one succeeded step's contribution to the response, in
// dependency order.
type StepResult struct {
	StepID  string
	Type    agent.Type
	Payload string
}

// StepFailure itemizes one failed step: never an opaque "something went
// wrong".
type StepFailure struct {
	StepID   string
	Type     agent.Type
	Kind     agent.ErrorKind
	Detail   string
	Attempts int
}

// AgentResponse is the aggregated result of one plan execution.
type AgentResponse struct {
	PlanID   string
	Status   plan.Status
	Output   string
	Results  []StepResult
	Failures []StepFailure
}

// Supervisor orchestrates build -> run -> format. It holds sole write
// access to per-session conversation contexts and publishes an
// immutable snapshot to each plan.
type Supervisor struct {
	classifier intent.Classifier
	builder    *plan.Builder
	dispatcher *dispatch.Dispatcher
	store      persistence.Store // optional audit mirror; nil disables

	// PlanStarted, when set before any request is processed, is called
	// once per plan after its log exists and before dispatch begins.
	// Callers use it to attach log-stream consumers (UI, analytics).
	PlanStarted func(planID string, lg *execlog.Log)

	mu       sync.Mutex
	sessions map[string]*intent.ConversationContext
	runs     map[string]*run // planID -> in-flight or retained run
	settled  []string        // settled plan IDs, oldest first
}

// maxRetainedRuns bounds how many settled runs keep their execution log
// in memory for Follow and Log. Evicted audit trails are still readable
// from the store.
const maxRetainedRuns = 32

// run is the per-plan state retained for log streaming and cancellation.
type run struct {
	log    *execlog.Log
	cancel context.CancelFunc
}

// New creates a Supervisor. classifier may be nil when callers always
// supply pre-classified intents; store may be nil to disable
// persistence.
func New(classifier intent.Classifier, builder *plan.Builder, dispatcher *dispatch.Dispatcher, store persistence.Store) *Supervisor {
	return &Supervisor{
		classifier: classifier,
		builder:    builder,
		dispatcher: dispatcher,
		store:      store,
		sessions:   make(map[string]*intent.ConversationContext),
		runs:       make(map[string]*run),
	}
}

// ProcessUserRequest classifies (if needed), builds, and runs a plan
// for the request, blocking until the plan settles. Step-level progress
// streams through the execution log (Follow) while this call is in
// flight. ErrInvalidPlan and unknown agent types surface as *ConfigError
// with nothing dispatched.
func (s *Supervisor) ProcessUserRequest(ctx context.Context, req Request) (*AgentResponse, error) {
	cc := s.session(req)

	in, err := s.resolveIntent(ctx, req, cc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cc.Append("user", req.Text)
	snap := cc.Snapshot()
	s.mu.Unlock()

	p, err := s.builder.Build(in, cc)
	if err != nil {
		if errors.Is(err, plan.ErrInvalidPlan) || errors.Is(err, agent.ErrUnknownAgentType) {
			return nil, &ConfigError{Cause: err}
		}
		return nil, err
	}

	lg := execlog.New(p.ID)
	if s.store != nil {
		lg.WithSink(s.store.Sink(context.WithoutCancel(ctx)))
		if err := s.store.SavePlan(ctx, p); err != nil {
			log.Printf("WARNING: failed to persist plan %s: %v", p.ID, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runs[p.ID] = &run{log: lg, cancel: cancel}
	s.mu.Unlock()

	defer func() {
		cancel()
		lg.Close()
		s.retireRun(p.ID)
	}()

	if s.PlanStarted != nil {
		s.PlanStarted(p.ID, lg)
	}

	status, err := s.dispatcher.Run(runCtx, p, snap, lg)
	if err != nil {
		if errors.Is(err, plan.ErrInvalidPlan) {
			return nil, &ConfigError{Cause: err}
		}
		return nil, err
	}

	s.persistResult(ctx, p)

	resp := formatResponse(p, status)

	s.mu.Lock()
	cc.Append("assistant", resp.Output)
	s.mu.Unlock()

	return resp, nil
}

// Cancel aborts an in-flight plan. In-flight capability calls are
// interrupted; the plan settles as failed without further dispatch.
// Cancelling a settled plan is a no-op. Returns false if the plan is
// unknown.
func (s *Supervisor) Cancel(planID string) bool {
	s.mu.Lock()
	r, ok := s.runs[planID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	r.cancel()
	return true
}

// Follow subscribes to a plan's execution log from the given sequence
// number: retained entries replay first, then live entries stream until
// the plan settles. This is the restartable stream external UIs consume
// for real-time task status. Logs stay available for the last
// maxRetainedRuns settled plans; older trails live only in the store.
func (s *Supervisor) Follow(planID string, fromSeq int) (<-chan execlog.Entry, error) {
	s.mu.Lock()
	r, ok := s.runs[planID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no execution log for plan %s", planID)
	}
	return r.log.Subscribe(fromSeq, 0), nil
}

// Log returns a plan's execution log, or nil.
func (s *Supervisor) Log(planID string) *execlog.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[planID]; ok {
		return r.log
	}
	return nil
}

// retireRun keeps a settled run available for late Follow and Log calls
// while evicting the oldest settled runs beyond maxRetainedRuns.
func (s *Supervisor) retireRun(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settled = append(s.settled, planID)
	for len(s.settled) > maxRetainedRuns {
		delete(s.runs, s.settled[0])
		s.settled = s.settled[1:]
	}
}

// session returns (creating if needed) the conversation context for the
// request's session. The supervisor is the sole writer.
func (s *Supervisor) session(req Request) *intent.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.sessions[req.SessionID]
	if !ok {
		cc = &intent.ConversationContext{
			UserID:    req.UserID,
			ProjectID: req.ProjectID,
			SessionID: req.SessionID,
			Language:  req.Language,
		}
		s.sessions[req.SessionID] = cc
	}
	return cc
}

// resolveIntent uses the pre-classified intent when supplied, otherwise
// calls out to the classification service.
func (s *Supervisor) resolveIntent(ctx context.Context, req Request, cc *intent.ConversationContext) (intent.Intent, error) {
	if req.Intent != nil {
		return *req.Intent, nil
	}
	if s.classifier == nil {
		return intent.Intent{}, fmt.Errorf("no classifier configured and request carries no intent")
	}
	in, err := s.classifier.Classify(ctx, req.Text, cc)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("classifying request: %w", err)
	}
	return in, nil
}

// persistResult mirrors final step and plan state into the store.
func (s *Supervisor) persistResult(ctx context.Context, p *plan.Plan) {
	if s.store == nil {
		return
	}
	for _, step := range p.Steps {
		if err := s.store.UpdateStepStatus(ctx, p.ID, step); err != nil {
			log.Printf("WARNING: failed to persist step %s: %v", step.ID, err)
		}
	}
	if err := s.store.UpdatePlanStatus(ctx, p.ID, p.Status); err != nil {
		log.Printf("WARNING: failed to persist plan status %s: %v", p.ID, err)
	}
}
