// Package dag builds and tracks the dependency graphs behind a DAG-mode
// invocation: a balanced-tree workflow generator standing in for the
// reference implementation's pickled invocation traces, and a per-flow
// predecessor-counter tracker that releases a node's successors once every
// predecessor has finished.
package dag

import "fmt"

// NodeSpec is one function node's static attributes within a Graph: the
// same duration/memory/vcpu triple for every node in a synthetic graph, or
// per-node values when loaded from a bundle.
type NodeSpec struct {
	DagName       string
	DurationMilli int64
	MemoryMib     int
	VCPU          int
}

// Graph is a single DAG workflow definition: a fixed set of function nodes
// connected by directed edges, dependency direction predecessor->successor.
type Graph struct {
	Name         string
	Nodes        []string
	Specs        map[string]NodeSpec
	successors   map[string][]string
	predecessors map[string][]string
}

// NewGraph creates an empty named Graph.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:         name,
		Specs:        make(map[string]NodeSpec),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}
}

// AddNode registers node with its spec, if not already present.
func (g *Graph) AddNode(node string, spec NodeSpec) {
	if _, ok := g.Specs[node]; !ok {
		g.Nodes = append(g.Nodes, node)
	}
	g.Specs[node] = spec
}

// AddEdge records a predecessor->successor dependency. Both ends must
// already have been added via AddNode.
func (g *Graph) AddEdge(predecessor, successor string) {
	g.successors[predecessor] = append(g.successors[predecessor], successor)
	g.predecessors[successor] = append(g.predecessors[successor], predecessor)
}

// Successors returns node's direct successors.
func (g *Graph) Successors(node string) []string {
	return g.successors[node]
}

// PredecessorCount returns the number of direct predecessors node has (0
// for a root node).
func (g *Graph) PredecessorCount(node string) int {
	return len(g.predecessors[node])
}

// NumEdges returns the total number of edges in the graph, used as the
// denominator of a flow's completion rate.
func (g *Graph) NumEdges() int {
	n := 0
	for _, succ := range g.successors {
		n += len(succ)
	}
	return n
}

// Roots returns every node with no predecessors.
func (g *Graph) Roots() []string {
	var roots []string
	for _, node := range g.Nodes {
		if g.PredecessorCount(node) == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// Synthetic builds a balanced-tree DAG of the given branching width and
// depth (root plus `depth` levels of `width` children each), fans every
// leaf into a single terminal join node, and stamps every node with the
// same duration/memory/vcpu spec. This is the Go analog of the reference
// generator's nx.balanced_tree + nx.bfs_tree relabeling, reimplemented
// without a graph library: the module only needs a tree shape, not general
// graph algorithms.
func Synthetic(dagName string, width, depth int, durationMilli int64, memoryMib, vcpu int) *Graph {
	g := NewGraph(dagName)
	spec := NodeSpec{DagName: dagName, DurationMilli: durationMilli, MemoryMib: memoryMib, VCPU: vcpu}

	counter := 0
	newNode := func() string {
		id := fmt.Sprintf("F%d", counter)
		counter++
		g.AddNode(id, spec)
		return id
	}

	root := newNode()
	frontier := []string{root}
	for d := 0; d < depth; d++ {
		var next []string
		for _, parent := range frontier {
			for w := 0; w < width; w++ {
				child := newNode()
				g.AddEdge(parent, child)
				next = append(next, child)
			}
		}
		frontier = next
	}

	var leaves []string
	for _, node := range g.Nodes {
		if len(g.successors[node]) == 0 {
			leaves = append(leaves, node)
		}
	}

	end := fmt.Sprintf("F%d", len(g.Nodes))
	g.AddNode(end, spec)
	for _, leaf := range leaves {
		g.AddEdge(leaf, end)
	}

	return g
}
