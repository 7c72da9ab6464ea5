package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/execlog"
	"github.com/voxlab/agentcore/internal/intent"
	"github.com/voxlab/agentcore/internal/plan"
	"github.com/voxlab/agentcore/internal/registry"
)

// scriptWorker returns its scripted outcomes in call order; the last
// outcome repeats once the script runs out.
type scriptWorker struct {
	name     string
	mu       sync.Mutex
	outcomes []agent.Outcome
	calls    int
}

func (w *scriptWorker) Name() string { return w.name }

func (w *scriptWorker) Execute(_ context.Context, _ agent.Task, _ intent.Snapshot) agent.Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.calls
	w.calls++
	if i >= len(w.outcomes) {
		i = len(w.outcomes) - 1
	}
	return w.outcomes[i]
}

func (w *scriptWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func ok(payload string) agent.Outcome {
	return agent.Outcome{Success: true, Payload: payload}
}

const (
	planPayload = "1. scaffold the project\n2. wire the entrypoint"
	codePayload = "```go\nfunc main() {}\n```"
)

func newTestDispatcher(reg *registry.Registry) *Dispatcher {
	fc := NewFailureCoordinator(config.RetryConfig{MaxRetries: 2, InitialIntervalMS: 1, Multiplier: 2})
	return New(reg, NewValidator(), fc)
}

func register(t *testing.T, reg *registry.Registry, typ agent.Type, maxConc int, workers ...agent.Worker) {
	t.Helper()
	d := agent.Descriptor{Type: typ, MaxConcurrency: maxConc, Timeout: 5 * time.Second}
	if err := reg.Register(d, workers...); err != nil {
		t.Fatalf("register %s: %v", typ, err)
	}
}

func testPlan(steps ...*plan.Step) *plan.Plan {
	return &plan.Plan{ID: "plan-1", CreatedAt: time.Now(), Status: plan.StatusPending, Steps: steps}
}

func countEvents(entries []execlog.Entry, stepID string, ev execlog.Event) int {
	n := 0
	for _, e := range entries {
		if e.StepID == stepID && e.Event == ev {
			n++
		}
	}
	return n
}

func eventIndex(t *testing.T, entries []execlog.Entry, stepID string, ev execlog.Event) int {
	t.Helper()
	for i, e := range entries {
		if e.StepID == stepID && e.Event == ev {
			return i
		}
	}
	t.Fatalf("no %s event for step %s", ev, stepID)
	return -1
}

func TestRunDependentStepWaitsForSuccess(t *testing.T) {
	reg := registry.New()
	register(t, reg, agent.TypePlanner, 2, &scriptWorker{name: "p", outcomes: []agent.Outcome{ok(planPayload)}})
	register(t, reg, agent.TypeCoder, 2, &scriptWorker{name: "c", outcomes: []agent.Outcome{ok(codePayload)}})

	p := testPlan(
		&plan.Step{ID: "a", Type: agent.TypePlanner},
		&plan.Step{ID: "b", Type: agent.TypeCoder, DependsOn: []string{"a"}},
	)
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}

	entries := lg.Entries()
	aDone := eventIndex(t, entries, "a", execlog.EventSucceeded)
	bStart := eventIndex(t, entries, "b", execlog.EventDispatched)
	if bStart < aDone {
		t.Errorf("step b dispatched (entry %d) before step a succeeded (entry %d)", bStart, aDone)
	}
}

func TestRunTransientFailureRecovers(t *testing.T) {
	w := &scriptWorker{name: "c", outcomes: []agent.Outcome{
		agent.Failure(agent.KindTimeout, "slow"),
		agent.Failure(agent.KindTimeout, "slow"),
		ok(codePayload),
	}}
	reg := registry.New()
	register(t, reg, agent.TypeCoder, 2, w)

	p := testPlan(&plan.Step{ID: "a", Type: agent.TypeCoder})
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
	if w.callCount() != 3 {
		t.Errorf("worker called %d times, want 3", w.callCount())
	}

	entries := lg.Entries()
	if n := countEvents(entries, "a", execlog.EventDispatched); n != 1 {
		t.Errorf("dispatched entries = %d, want 1", n)
	}
	if n := countEvents(entries, "a", execlog.EventFailed); n != 2 {
		t.Errorf("failed entries = %d, want 2", n)
	}
	if n := countEvents(entries, "a", execlog.EventRetried); n != 2 {
		t.Errorf("retried entries = %d, want 2", n)
	}
	if n := countEvents(entries, "a", execlog.EventSucceeded); n != 1 {
		t.Errorf("succeeded entries = %d, want 1", n)
	}

	if s := p.Step("a"); s.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", s.Attempts)
	}
}

func TestRunRetryExhaustionSkipsDependents(t *testing.T) {
	w := &scriptWorker{name: "c", outcomes: []agent.Outcome{agent.Failure(agent.KindTimeout, "slow")}}
	reg := registry.New()
	register(t, reg, agent.TypeCoder, 2, w)
	register(t, reg, agent.TypeDeployment, 1, &scriptWorker{name: "d", outcomes: []agent.Outcome{ok("deployed")}})

	p := testPlan(
		&plan.Step{ID: "a", Type: agent.TypeCoder},
		&plan.Step{ID: "b", Type: agent.TypeDeployment, DependsOn: []string{"a"}},
	)
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if w.callCount() != 3 {
		t.Errorf("worker called %d times, want 3 (initial + 2 retries)", w.callCount())
	}

	sa := p.Step("a")
	if sa.Status != plan.StepTerminallyFailed {
		t.Errorf("step a status = %s, want terminally_failed", sa.Status)
	}
	sb := p.Step("b")
	if sb.Status != plan.StepSkipped {
		t.Errorf("step b status = %s, want skipped", sb.Status)
	}

	entries := lg.Entries()
	if n := countEvents(entries, "a", execlog.EventAborted); n != 1 {
		t.Errorf("aborted entries = %d, want 1", n)
	}
	if n := countEvents(entries, "b", execlog.EventSkipped); n != 1 {
		t.Errorf("skipped entries = %d, want 1", n)
	}
	if n := countEvents(entries, "b", execlog.EventDispatched); n != 0 {
		t.Errorf("skipped step was dispatched %d times", n)
	}
}

// The mixed outcome: one branch succeeds, its dependent exhausts its
// retries, and the plan settles as partially failed with the full audit
// trail for both steps.
func TestRunPartialFailureAuditTrail(t *testing.T) {
	reg := registry.New()
	register(t, reg, agent.TypePlanner, 2, &scriptWorker{name: "p", outcomes: []agent.Outcome{ok(planPayload)}})
	register(t, reg, agent.TypeCoder, 2, &scriptWorker{name: "c", outcomes: []agent.Outcome{agent.Failure(agent.KindTimeout, "slow")}})

	p := testPlan(
		&plan.Step{ID: "plan-step", Type: agent.TypePlanner},
		&plan.Step{ID: "code-step", Type: agent.TypeCoder, DependsOn: []string{"plan-step"}},
	)
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusPartiallyFailed {
		t.Errorf("status = %s, want partially_failed", status)
	}

	entries := lg.Entries()
	for _, tc := range []struct {
		stepID string
		event  execlog.Event
		want   int
	}{
		{"plan-step", execlog.EventDispatched, 1},
		{"plan-step", execlog.EventValidated, 1},
		{"plan-step", execlog.EventSucceeded, 1},
		{"code-step", execlog.EventDispatched, 1},
		{"code-step", execlog.EventFailed, 3},
		{"code-step", execlog.EventRetried, 2},
		{"code-step", execlog.EventAborted, 1},
	} {
		if n := countEvents(entries, tc.stepID, tc.event); n != tc.want {
			t.Errorf("%s %s entries = %d, want %d", tc.stepID, tc.event, n, tc.want)
		}
	}
}

// Independent steps in the same ready set run concurrently: each worker
// blocks until both invocations have started.
func TestRunIndependentStepsRunConcurrently(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})

	blocking := func(name string) agent.Worker {
		return workerFunc{name: name, fn: func(ctx context.Context) agent.Outcome {
			started <- name
			select {
			case <-release:
				return ok("diagnosis: off-by-one")
			case <-time.After(2 * time.Second):
				return agent.Failure(agent.KindInternal, "peer never started")
			}
		}}
	}

	reg := registry.New()
	register(t, reg, agent.TypeTutor, 2, blocking("t1"))
	register(t, reg, agent.TypeCoder, 2, workerFunc{name: "c1", fn: func(ctx context.Context) agent.Outcome {
		started <- "c1"
		select {
		case <-release:
			return ok(codePayload)
		case <-time.After(2 * time.Second):
			return agent.Failure(agent.KindInternal, "peer never started")
		}
	}})

	p := testPlan(
		&plan.Step{ID: "a", Type: agent.TypeTutor},
		&plan.Step{ID: "b", Type: agent.TypeCoder},
	)
	lg := execlog.New(p.ID)

	go func() {
		<-started
		<-started
		close(release)
	}()

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
}

// workerFunc is a context-aware inline worker for blocking tests.
type workerFunc struct {
	name string
	fn   func(ctx context.Context) agent.Outcome
}

func (w workerFunc) Name() string { return w.name }

func (w workerFunc) Execute(ctx context.Context, _ agent.Task, _ intent.Snapshot) agent.Outcome {
	return w.fn(ctx)
}

// A wide ready set with instantly completing steps interleaves launches
// with completions; every step must still be invoked exactly once.
func TestRunWideReadySetDispatchesOnce(t *testing.T) {
	const n = 50

	var calls atomic.Int64
	w := workerFunc{name: "t", fn: func(context.Context) agent.Outcome {
		calls.Add(1)
		return ok("a mutex serializes access to shared state")
	}}
	reg := registry.New()
	register(t, reg, agent.TypeTutor, 8, w)

	steps := make([]*plan.Step, 0, n)
	for i := 0; i < n; i++ {
		steps = append(steps, &plan.Step{ID: fmt.Sprintf("s%02d", i), Type: agent.TypeTutor})
	}
	p := testPlan(steps...)
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
	if got := calls.Load(); got != n {
		t.Errorf("worker invoked %d times for %d steps", got, n)
	}

	entries := lg.Entries()
	for _, s := range steps {
		if c := countEvents(entries, s.ID, execlog.EventDispatched); c != 1 {
			t.Errorf("step %s dispatched %d times", s.ID, c)
		}
		if c := countEvents(entries, s.ID, execlog.EventSucceeded); c != 1 {
			t.Errorf("step %s succeeded %d times", s.ID, c)
		}
		if got := p.Step(s.ID).Attempts; got != 1 {
			t.Errorf("step %s attempts = %d, want 1", s.ID, got)
		}
	}
}

func TestRunValidationRejectionReassigns(t *testing.T) {
	primary := &scriptWorker{name: "c-primary", outcomes: []agent.Outcome{ok("no code here at all")}}
	fallback := &scriptWorker{name: "c-fallback", outcomes: []agent.Outcome{ok(codePayload)}}
	reg := registry.New()
	register(t, reg, agent.TypeCoder, 2, primary, fallback)

	p := testPlan(&plan.Step{ID: "a", Type: agent.TypeCoder})
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
	if primary.callCount() != 1 {
		t.Errorf("primary called %d times, want 1 (no same-worker retry on rejection)", primary.callCount())
	}
	if fallback.callCount() != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.callCount())
	}

	entries := lg.Entries()
	if n := countEvents(entries, "a", execlog.EventRejected); n != 1 {
		t.Errorf("rejected entries = %d, want 1", n)
	}
	if n := countEvents(entries, "a", execlog.EventReassigned); n != 1 {
		t.Errorf("reassigned entries = %d, want 1", n)
	}
	if n := countEvents(entries, "a", execlog.EventSucceeded); n != 1 {
		t.Errorf("succeeded entries = %d, want 1", n)
	}

	s := p.Step("a")
	if s.WorkerIdx != 1 {
		t.Errorf("worker index = %d, want 1", s.WorkerIdx)
	}
}

func TestRunCancellationFailsPlan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	startedCh := make(chan struct{})

	reg := registry.New()
	register(t, reg, agent.TypePlanner, 1, workerFunc{name: "p", fn: func(wctx context.Context) agent.Outcome {
		close(startedCh)
		<-wctx.Done()
		return agent.Failure(agent.KindCancelled, "cancelled")
	}})
	register(t, reg, agent.TypeCoder, 1, &scriptWorker{name: "c", outcomes: []agent.Outcome{ok(codePayload)}})

	p := testPlan(
		&plan.Step{ID: "a", Type: agent.TypePlanner},
		&plan.Step{ID: "b", Type: agent.TypeCoder, DependsOn: []string{"a"}},
	)
	lg := execlog.New(p.ID)

	go func() {
		<-startedCh
		cancel()
	}()

	status, err := newTestDispatcher(reg).Run(ctx, p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}

	sa := p.Step("a")
	if sa.Status != plan.StepTerminallyFailed {
		t.Errorf("step a status = %s, want terminally_failed", sa.Status)
	}
	sb := p.Step("b")
	if sb.Status != plan.StepSkipped {
		t.Errorf("step b status = %s, want skipped", sb.Status)
	}
	if n := countEvents(lg.Entries(), "b", execlog.EventDispatched); n != 0 {
		t.Errorf("step b dispatched %d times after cancellation", n)
	}
}

func TestRunUnknownAgentTypeAborts(t *testing.T) {
	reg := registry.New()
	register(t, reg, agent.TypeCoder, 1, &scriptWorker{name: "c", outcomes: []agent.Outcome{ok(codePayload)}})

	p := testPlan(&plan.Step{ID: "a", Type: agent.Type("mystery")})
	lg := execlog.New(p.ID)

	status, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != plan.StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if n := countEvents(lg.Entries(), "a", execlog.EventAborted); n != 1 {
		t.Errorf("aborted entries = %d, want 1", n)
	}
}

func TestRunRejectsCyclicPlan(t *testing.T) {
	w := &scriptWorker{name: "c", outcomes: []agent.Outcome{ok(codePayload)}}
	reg := registry.New()
	register(t, reg, agent.TypeCoder, 1, w)

	p := testPlan(
		&plan.Step{ID: "a", Type: agent.TypeCoder, DependsOn: []string{"b"}},
		&plan.Step{ID: "b", Type: agent.TypeCoder, DependsOn: []string{"a"}},
	)
	lg := execlog.New(p.ID)

	_, err := newTestDispatcher(reg).Run(context.Background(), p, intent.Snapshot{}, lg)
	if !errors.Is(err, plan.ErrInvalidPlan) {
		t.Fatalf("err = %v, want ErrInvalidPlan", err)
	}
	if w.callCount() != 0 {
		t.Error("worker invoked for an invalid plan")
	}
	if lg.Len() != 0 {
		t.Errorf("log has %d entries for an undispatched plan", lg.Len())
	}
}
