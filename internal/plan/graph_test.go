package plan

import (
	"strings"
	"testing"

	"github.com/voxlab/agentcore/internal/agent"
)

func mustGraph(t *testing.T, steps ...*Step) *Graph {
	t.Helper()

	g, err := NewGraph(&Plan{ID: "p1", Steps: steps})
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	return g
}

// TestGraphValidate tests dependency validation with various graph
// structures.
func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		steps       []*Step
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			steps: []*Step{
				{ID: "A"},
				{ID: "B", DependsOn: []string{"A"}},
				{ID: "C", DependsOn: []string{"B"}},
			},
		},
		{
			name: "valid parallel steps",
			steps: []*Step{
				{ID: "A"},
				{ID: "B"},
				{ID: "C", DependsOn: []string{"A", "B"}},
			},
		},
		{
			name:  "single step no deps",
			steps: []*Step{{ID: "A"}},
		},
		{
			name: "direct cycle",
			steps: []*Step{
				{ID: "A", DependsOn: []string{"B"}},
				{ID: "B", DependsOn: []string{"A"}},
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			steps: []*Step{
				{ID: "A", DependsOn: []string{"C"}},
				{ID: "B", DependsOn: []string{"A"}},
				{ID: "C", DependsOn: []string{"B"}},
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing dependency",
			steps: []*Step{
				{ID: "A", DependsOn: []string{"ghost"}},
			},
			wantErr:     true,
			errContains: "non-existent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGraph(t, tt.steps...)
			order, err := g.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got order %v", order)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if len(order) != len(tt.steps) {
				t.Errorf("order has %d steps, want %d", len(order), len(tt.steps))
			}
		})
	}
}

func TestGraphDuplicateStepID(t *testing.T) {
	_, err := NewGraph(&Plan{Steps: []*Step{{ID: "A"}, {ID: "A"}}})
	if err == nil {
		t.Fatal("expected error for duplicate step ID")
	}
}

// TestGraphReady verifies the ready set honors dependency state and
// keeps plan insertion order as the deterministic tie-break.
func TestGraphReady(t *testing.T) {
	g := mustGraph(t,
		&Step{ID: "B"},
		&Step{ID: "A"},
		&Step{ID: "C", DependsOn: []string{"A", "B"}},
	)

	ready := g.Ready()
	if len(ready) != 2 {
		t.Fatalf("got %d ready steps, want 2", len(ready))
	}
	// Insertion order, not alphabetical.
	if ready[0].ID != "B" || ready[1].ID != "A" {
		t.Errorf("ready order = [%s %s], want [B A]", ready[0].ID, ready[1].ID)
	}

	// C stays unready until BOTH dependencies succeed.
	if err := g.SetStatus("B", StepSucceeded); err != nil {
		t.Fatal(err)
	}
	g.SetStatus("A", StepDispatched)
	for _, s := range g.Ready() {
		if s.ID == "C" {
			t.Error("C became ready with A still dispatched")
		}
	}

	g.SetStatus("A", StepSucceeded)
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "C" {
		t.Errorf("ready = %v, want [C]", ready)
	}
}

func TestGraphSkipDependents(t *testing.T) {
	g := mustGraph(t,
		&Step{ID: "A"},
		&Step{ID: "B", DependsOn: []string{"A"}},
		&Step{ID: "C", DependsOn: []string{"B"}},
		&Step{ID: "D"}, // independent branch, untouched
	)

	g.SetStatus("A", StepTerminallyFailed)
	skipped := g.SkipDependents("A")

	if len(skipped) != 2 || skipped[0] != "B" || skipped[1] != "C" {
		t.Fatalf("skipped = %v, want [B C]", skipped)
	}

	for _, id := range []string{"B", "C"} {
		s, _ := g.Step(id)
		if s.Status != StepSkipped {
			t.Errorf("step %s status = %s, want skipped", id, s.Status)
		}
	}
	d, _ := g.Step("D")
	if d.Status != StepPending {
		t.Errorf("independent step D status = %s, want pending", d.Status)
	}
}

func TestGraphTerminalTransitionRejected(t *testing.T) {
	g := mustGraph(t, &Step{ID: "A"})

	if err := g.SetStatus("A", StepSucceeded); err != nil {
		t.Fatal(err)
	}
	if err := g.SetStatus("A", StepFailed); err == nil {
		t.Error("expected transition out of terminal status to fail")
	}
}

func TestGraphSettled(t *testing.T) {
	g := mustGraph(t,
		&Step{ID: "A"},
		&Step{ID: "B"},
		&Step{ID: "C"},
	)

	done, _, _ := g.Settled()
	if done {
		t.Fatal("settled with all steps pending")
	}

	g.SetStatus("A", StepSucceeded)
	g.SetStatus("B", StepTerminallyFailed)
	g.SetStatus("C", StepSkipped)

	done, succeeded, failed := g.Settled()
	if !done {
		t.Fatal("not settled with all steps terminal")
	}
	if succeeded != 1 || failed != 2 {
		t.Errorf("succeeded=%d failed=%d, want 1 and 2", succeeded, failed)
	}
}

// TestGraphCloneIsolation checks that mutating a returned step copy
// does not leak into the graph.
func TestGraphCloneIsolation(t *testing.T) {
	g := mustGraph(t, &Step{ID: "A", Input: map[string]string{"k": "v"}})

	s, _ := g.Step("A")
	s.Input["k"] = "mutated"
	s.Outcome = &agent.Outcome{Success: true}

	fresh, _ := g.Step("A")
	if fresh.Input["k"] != "v" {
		t.Error("mutation of clone leaked into graph")
	}
	if fresh.Outcome != nil {
		t.Error("outcome set on clone leaked into graph")
	}
}
