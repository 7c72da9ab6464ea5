package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/dispatch"
	"github.com/voxlab/agentcore/internal/execlog"
	"github.com/voxlab/agentcore/internal/intent"
	"github.com/voxlab/agentcore/internal/persistence"
	"github.com/voxlab/agentcore/internal/plan"
	"github.com/voxlab/agentcore/internal/registry"
	"github.com/voxlab/agentcore/internal/supervisor"
	"github.com/voxlab/agentcore/internal/tui"
	"github.com/voxlab/agentcore/internal/worker"
)

func main() {
	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := worker.NewProcessManager()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	var store persistence.Store
	if cfg.DBPath != "" {
		s, err := persistence.NewSQLiteStore(ctx, cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		store = s
		defer s.Close()
	}

	reg, err := buildRegistry(cfg, pm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building registry: %v\n", err)
		os.Exit(1)
	}

	builder := plan.NewBuilder(plan.RoutesFromConfig(cfg.Routes), reg)
	dispatcher := dispatch.New(reg, dispatch.NewValidator(), dispatch.NewFailureCoordinator(cfg.Retry))
	sup := supervisor.New(keywordClassifier{}, builder, dispatcher, store)

	text := strings.Join(os.Args[1:], " ")
	if text == "" {
		text = "create a new project"
	}

	// The viewer attaches once the plan's log exists.
	logReady := make(chan *execlog.Log, 1)
	sup.PlanStarted = func(planID string, lg *execlog.Log) {
		logReady <- lg
	}

	type result struct {
		resp *supervisor.AgentResponse
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := sup.ProcessUserRequest(ctx, supervisor.Request{
			UserID:    "local",
			SessionID: "local",
			Language:  "en",
			Text:      text,
		})
		resCh <- result{resp: resp, err: err}
	}()

	// Wait for dispatch to begin; a pre-dispatch failure (config error)
	// arrives on resCh first.
	var lg *execlog.Log
	select {
	case lg = <-logReady:
	case res := <-resCh:
		finish(res.resp, res.err)
		return
	case <-ctx.Done():
		shutdown(pm)
		return
	}

	p := tea.NewProgram(tui.New(lg.Subscribe(0, 0)), tea.WithAltScreen())
	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Viewer exited (user pressed q); the plan keeps running.
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		res := <-resCh
		finish(res.resp, res.err)

	case res := <-resCh:
		// Plan settled; give the viewer a moment to drain, then close it.
		time.Sleep(200 * time.Millisecond)
		p.Quit()
		<-errChan
		finish(res.resp, res.err)

	case <-ctx.Done():
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		p.Quit()
		<-errChan
		shutdown(pm)
	}
}

// buildRegistry registers the configured agents; agents with no
// configured commands fall back to built-in demo workers.
func buildRegistry(cfg *config.Config, pm *worker.ProcessManager) (*registry.Registry, error) {
	reg := registry.New()
	for name, ac := range cfg.Agents {
		t := agent.Type(name)
		workers := worker.FromConfig(ac.Workers, pm)
		if len(workers) == 0 {
			workers = []agent.Worker{worker.Builtin(t)}
		}
		d := agent.Descriptor{
			Type:           t,
			MaxConcurrency: ac.MaxConcurrency,
			Timeout:        time.Duration(ac.TimeoutSeconds) * time.Second,
		}
		if err := reg.Register(d, workers...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// finish prints the response or error and exits accordingly.
func finish(resp *supervisor.AgentResponse, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Plan %s: %s\n\n%s\n", resp.PlanID, resp.Status, resp.Output)
	if len(resp.Failures) > 0 {
		os.Exit(1)
	}
}

// shutdown kills tracked worker subprocesses.
func shutdown(pm *worker.ProcessManager) {
	if err := pm.KillAll(); err != nil {
		log.Printf("Error killing processes: %v", err)
	}
}

// keywordClassifier is stand-in glue for the external intent
// classification service: a keyword match over the request text.
type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string, _ *intent.ConversationContext) (intent.Intent, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "deploy"):
		return intent.Intent{Type: intent.IntentDeployApp, Confidence: 0.9}, nil
	case strings.Contains(lower, "debug"), strings.Contains(lower, "error"), strings.Contains(lower, "fix"):
		return intent.Intent{Type: intent.IntentDebugError, Confidence: 0.9}, nil
	case strings.Contains(lower, "create"), strings.Contains(lower, "build"), strings.Contains(lower, "new project"):
		return intent.Intent{Type: intent.IntentCreateProject, Confidence: 0.9}, nil
	case strings.Contains(lower, "explain"), strings.Contains(lower, "what is"), strings.Contains(lower, "how do"):
		return intent.Intent{Type: intent.IntentExplainConcept, Confidence: 0.9}, nil
	}
	return intent.Intent{Type: intent.IntentUnknown, Confidence: 0.3}, nil
}
