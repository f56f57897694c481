package engine

import "testing"

func TestPlanWavesLinear(t *testing.T) {
	order := []string{"a", "b", "c"}
	edges := []WorkflowEdge{edge("a", "b"), edge("b", "c")}

	waves := PlanWaves(order, edges)
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves for a linear chain, got %d", len(waves))
	}
	for i, w := range waves {
		if w.Level != i {
			t.Fatalf("wave %d has level %d", i, w.Level)
		}
		if len(w.Nodes) != 1 || w.Nodes[0] != order[i] {
			t.Fatalf("wave %d nodes = %v, want [%s]", i, w.Nodes, order[i])
		}
	}
}

func TestPlanWavesDiamondMergesAtSameLevel(t *testing.T) {
	order := []string{"a", "b", "c", "d"}
	edges := []WorkflowEdge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")}

	waves := PlanWaves(order, edges)
	if len(waves) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(waves), WaveSummary(waves))
	}
	if len(waves[1].Nodes) != 2 {
		t.Fatalf("expected b and c to share level 1, got %v", waves[1].Nodes)
	}
	if waves[2].Nodes[0] != "d" {
		t.Fatalf("expected d alone at the final level, got %v", waves[2].Nodes)
	}
}

func TestPlanWavesUnevenDepthTakesLongestPath(t *testing.T) {
	// a->d directly, and a->b->c->d: d's level must be max(parent levels)+1,
	// i.e. driven by the longer a->b->c->d chain, not the short a->d edge.
	order := []string{"a", "b", "c", "d"}
	edges := []WorkflowEdge{edge("a", "d"), edge("a", "b"), edge("b", "c"), edge("c", "d")}

	waves := PlanWaves(order, edges)
	var dLevel int
	for _, w := range waves {
		for _, n := range w.Nodes {
			if n == "d" {
				dLevel = w.Level
			}
		}
	}
	if dLevel != 3 {
		t.Fatalf("expected d at level 3 (longest path), got %d: %v", dLevel, WaveSummary(waves))
	}
}

func TestWaveSummaryShape(t *testing.T) {
	waves := []Wave{{Level: 0, Nodes: []string{"a"}}, {Level: 1, Nodes: []string{"b", "c"}}}
	summary := WaveSummary(waves)
	if len(summary) != 2 {
		t.Fatalf("expected 2 summary entries, got %d", len(summary))
	}
	if summary[1]["level"] != 1 {
		t.Fatalf("expected level 1, got %v", summary[1]["level"])
	}
	nodes, ok := summary[1]["nodes"].([]string)
	if !ok || len(nodes) != 2 {
		t.Fatalf("expected nodes slice of length 2, got %v", summary[1]["nodes"])
	}
}
