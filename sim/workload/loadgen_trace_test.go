package workload

import (
	"math/rand"
	"testing"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/dag"
)

func TestRunTrace_OneFlowPerGraph(t *testing.T) {
	bundle := dag.SyntheticBundle(3, 1, 1, 50, 64, 1)

	var functions []*sim.Function
	seen := map[string]bool{}
	for _, g := range bundle {
		for _, name := range g.Nodes {
			if !seen[name] {
				seen[name] = true
				functions = append(functions, sim.NewFunction(name, 1, 1))
			}
		}
	}

	c := newTestCluster(functions, 2, 4)
	engine := dag.NewEngine(c, c.RT, 0)
	c.RT.Flows = engine

	gen := NewGenerator(c, rand.New(rand.NewSource(5)))
	if err := gen.RunTrace(engine, bundle, 20, 0); err != nil {
		t.Fatalf("RunTrace: %v", err)
	}
	if engine.Len() != 0 {
		t.Errorf("expected every trace flow drained, %d still in flight", engine.Len())
	}
}

func TestRunTraceSchedule_ReplaysCSVInvocationCounts(t *testing.T) {
	bundle := dag.SyntheticBundle(1, 1, 1, 50, 64, 1)
	dags := map[string]*dag.Graph{bundle[0].Name: bundle[0]}

	var functions []*sim.Function
	for _, name := range bundle[0].Nodes {
		functions = append(functions, sim.NewFunction(name, 1, 1))
	}

	c := newTestCluster(functions, 1, 4)
	engine := dag.NewEngine(c, c.RT, 0)
	c.RT.Flows = engine

	records := []InvocationRecord{
		{Timestamp: 0, DagName: bundle[0].Name, NumInvocations: 2},
		{Timestamp: 10, DagName: bundle[0].Name, NumInvocations: 1},
	}

	gen := NewGenerator(c, rand.New(rand.NewSource(6)))
	if err := gen.RunTraceSchedule(engine, dags, records, 0); err != nil {
		t.Fatalf("RunTraceSchedule: %v", err)
	}
	if engine.Len() != 0 {
		t.Errorf("expected every scheduled flow drained, %d still in flight", engine.Len())
	}
}
