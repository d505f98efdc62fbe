package dag

import "testing"

func TestSynthetic_WidthOneDepthOne_LinearChainPlusJoin(t *testing.T) {
	g := Synthetic("d", 1, 1, 100, 128, 1)
	// F0 (root) -> F1 (child) -> F2 (join).
	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	if got := g.Successors("F0"); len(got) != 1 || got[0] != "F1" {
		t.Fatalf("F0 successors = %v", got)
	}
	if got := g.Successors("F1"); len(got) != 1 || got[0] != "F2" {
		t.Fatalf("F1 successors = %v", got)
	}
	if g.PredecessorCount("F0") != 0 {
		t.Fatalf("root should have no predecessors")
	}
	if g.PredecessorCount("F2") != 1 {
		t.Fatalf("join node should have 1 predecessor, got %d", g.PredecessorCount("F2"))
	}
}

func TestSynthetic_WidthTwoDepthOne_FansIntoJoin(t *testing.T) {
	g := Synthetic("d", 2, 1, 100, 128, 1)
	// F0 -> {F1, F2} -> F3 (join).
	if len(g.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	if g.PredecessorCount("F3") != 2 {
		t.Fatalf("join node should have 2 predecessors, got %d", g.PredecessorCount("F3"))
	}
}

func TestSynthetic_DepthZero_SingleNodePlusJoin(t *testing.T) {
	g := Synthetic("d", 1, 0, 100, 128, 1)
	if len(g.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	if g.Roots()[0] != "F0" {
		t.Fatalf("expected root F0, got %v", g.Roots())
	}
}

func TestGraph_NumEdgesMatchesAddedEdges(t *testing.T) {
	g := Synthetic("d", 2, 2, 50, 64, 1)
	edges := g.NumEdges()
	if edges == 0 {
		t.Fatalf("expected nonzero edges")
	}
	// Every node but the root has exactly one incoming edge in a tree, plus
	// every leaf gets one more edge to the join node.
	total := 0
	for _, node := range g.Nodes {
		total += g.PredecessorCount(node)
	}
	if total != edges {
		t.Fatalf("sum of predecessor counts (%d) should equal edge count (%d)", total, edges)
	}
}
