package dag

import (
	"encoding/json"
	"fmt"
	"os"
)

// BundleLoader loads a set of named DAG workflow definitions, standing in
// for the reference implementation's pickled-trace ingestion (out of
// scope here — see SPEC_FULL.md §1).
type BundleLoader interface {
	Load() ([]*Graph, error)
}

// jsonGraph is the on-disk shape one JSONBundleLoader entry takes: a flat
// node list plus an edge list, avoiding the need for a generic graph
// serialization library for what is, in this simulator, always a small DAG.
type jsonGraph struct {
	Name  string          `json:"name"`
	Nodes []jsonGraphNode `json:"nodes"`
	Edges [][2]string     `json:"edges"`
}

type jsonGraphNode struct {
	Name          string `json:"name"`
	DurationMilli int64  `json:"duration_milli"`
	MemoryMib     int    `json:"memory_mib"`
	VCPU          int    `json:"vcpu"`
}

// JSONBundleLoader reads a small JSON array of graphs from Path, the
// simulator's stand-in for a preprocessed trace bundle.
type JSONBundleLoader struct {
	Path string
}

// NewJSONBundleLoader creates a JSONBundleLoader reading from path.
func NewJSONBundleLoader(path string) *JSONBundleLoader {
	return &JSONBundleLoader{Path: path}
}

// Load implements BundleLoader.
func (l *JSONBundleLoader) Load() ([]*Graph, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read dag bundle %s: %w", l.Path, err)
	}

	var raw []jsonGraph
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dag bundle %s: %w", l.Path, err)
	}

	graphs := make([]*Graph, 0, len(raw))
	for _, rg := range raw {
		g := NewGraph(rg.Name)
		for _, n := range rg.Nodes {
			g.AddNode(n.Name, NodeSpec{
				DagName:       rg.Name,
				DurationMilli: n.DurationMilli,
				MemoryMib:     n.MemoryMib,
				VCPU:          n.VCPU,
			})
		}
		for _, edge := range rg.Edges {
			g.AddEdge(edge[0], edge[1])
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// SyntheticBundle generates count independent synthetic DAGs (named
// gen_dag_0, gen_dag_1, ...), a BundleLoader-free stand-in for trace mode
// when no bundle file is available, used by tests that need a multi-graph
// bundle without a fixture file (the CLI modes build their DAGs with
// Synthetic directly).
func SyntheticBundle(count, width, depth int, durationMilli int64, memoryMib, vcpu int) []*Graph {
	graphs := make([]*Graph, count)
	for i := range graphs {
		graphs[i] = Synthetic(fmt.Sprintf("gen_dag_%d", i), width, depth, durationMilli, memoryMib, vcpu)
	}
	return graphs
}
