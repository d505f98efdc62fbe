package cluster

import (
	"fmt"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/trace"
)

// FlowTracker releases a completed request's successors in whatever DAG
// engine owns it. Runtime depends only on this interface, not on the dag
// package, so sim/cluster has no import cycle back to the flow engine.
type FlowTracker interface {
	Dereference(request *sim.Request)
	// CompletionRate returns the fraction of a flow's requests that have
	// completed, and whether flowID is still tracked (a flow that has
	// fully finished and been swept is reported as not-ok, treated as a
	// completion rate of 1 by callers).
	CompletionRate(flowID int64) (rate float64, ok bool)
}

// Drainer observes a request finishing on some node, for metrics/CSV
// output. Both completions and failures are drained. node is passed
// directly (rather than a NodeID the implementer would have to resolve)
// since the node may already have removed itself from the runtime by the
// time Drain runs (a HarvestVM that died mid-preemption).
type Drainer interface {
	Drain(node *Node, request *sim.Request)
}

// Runtime is the simulation's explicit global state (spec's GlobalState,
// threaded as a parameter rather than held in package-level variables): the
// clock, the config, the RNG, and every Node/Instance/Function the cluster
// currently owns. Not safe for concurrent use — the tick loop is the only
// mutator.
type Runtime struct {
	Clock  *sim.Clock
	Config *sim.Config
	RNG    *PartitionedRNG

	nodes     map[NodeID]*Node
	nodeOrder []NodeID
	instances map[InstanceID]*Instance
	functions map[string]*sim.Function

	Flows   FlowTracker
	Metrics Drainer

	// Trace optionally records every admission and dispatch decision made
	// this run, for post-hoc load-balance/throttler policy analysis. Nil
	// disables recording entirely.
	Trace *trace.Run

	Throttler  *Throttler
	Autoscaler *Autoscaler
	Scheduler  *Scheduler

	nextInstanceSeq int64
}

// NewRuntime creates an empty Runtime.
func NewRuntime(cfg *sim.Config, seed int64) *Runtime {
	return &Runtime{
		Clock:     sim.NewClock(),
		Config:    cfg,
		RNG:       NewPartitionedRNG(seed),
		nodes:     make(map[NodeID]*Node),
		instances: make(map[InstanceID]*Instance),
		functions: make(map[string]*sim.Function),
	}
}

// Now returns the current virtual clock reading in milliseconds.
func (rt *Runtime) Now() int64 {
	return rt.Clock.Now()
}

// Node resolves a NodeID to its live *Node, or nil if the node has been
// removed (e.g. a HarvestVM that died).
func (rt *Runtime) Node(id NodeID) *Node {
	return rt.nodes[id]
}

// Instance resolves an InstanceID to its live *Instance.
func (rt *Runtime) Instance(id InstanceID) *Instance {
	return rt.instances[id]
}

// Function resolves a function name to its definition.
func (rt *Runtime) Function(name string) *sim.Function {
	return rt.functions[name]
}

// AddFunction registers a function definition.
func (rt *Runtime) AddFunction(fn *sim.Function) {
	rt.functions[fn.Name] = fn
}

// AddNode registers a node and takes ownership of it.
func (rt *Runtime) AddNode(n *Node) {
	rt.nodes[n.ID] = n
	rt.nodeOrder = append(rt.nodeOrder, n.ID)
}

// RemoveNode drops a node from the runtime (used when a HarvestVM dies).
func (rt *Runtime) RemoveNode(id NodeID) {
	delete(rt.nodes, id)
	for i, nodeID := range rt.nodeOrder {
		if nodeID == id {
			rt.nodeOrder = append(rt.nodeOrder[:i], rt.nodeOrder[i+1:]...)
			break
		}
	}
}

// Nodes returns every live node, in a stable registration order (insertion
// order, reshuffled only by ShuffleNodes) so that scheduler placement and
// node iteration stay reproducible across runs with the same seed — unlike
// Go map iteration, which is intentionally randomized per process.
func (rt *Runtime) Nodes() []*Node {
	out := make([]*Node, 0, len(rt.nodeOrder))
	for _, id := range rt.nodeOrder {
		out = append(out, rt.nodes[id])
	}
	return out
}

// ShuffleNodes reorders the node iteration order using the scheduler's RNG
// stream, mirroring the reference cluster reshuffling its worker list
// whenever a new HarvestVM joins.
func (rt *Runtime) ShuffleNodes() {
	rng := rt.RNG.ForSubsystem(SubsystemScheduler)
	rng.Shuffle(len(rt.nodeOrder), func(i, j int) {
		rt.nodeOrder[i], rt.nodeOrder[j] = rt.nodeOrder[j], rt.nodeOrder[i]
	})
}

// NewInstanceID allocates a stable, unique instance identifier.
func (rt *Runtime) NewInstanceID(fn string) InstanceID {
	rt.nextInstanceSeq++
	return InstanceID(fmt.Sprintf("%s-%d", fn, rt.nextInstanceSeq))
}

// AddInstance registers an instance, taking ownership of it.
func (rt *Runtime) AddInstance(i *Instance) {
	rt.instances[i.ID] = i
}

// RemoveInstance drops an instance once it has been fully evicted.
func (rt *Runtime) RemoveInstance(id InstanceID) {
	delete(rt.instances, id)
}

// Dereference releases a finished request's successors in the DAG flow
// engine, if one is attached.
func (rt *Runtime) Dereference(request *sim.Request) {
	if rt.Flows != nil {
		rt.Flows.Dereference(request)
	}
}

// FlowCompletionRate returns the completion rate of flowID, defaulting to
// 1 (fully complete) when no flow tracker is attached or the flow is no
// longer tracked.
func (rt *Runtime) FlowCompletionRate(flowID int64) float64 {
	if rt.Flows == nil {
		return 1
	}
	rate, ok := rt.Flows.CompletionRate(flowID)
	if !ok {
		return 1
	}
	return rate
}

// Drain records a request finishing (successfully or not) on node, for
// metrics/CSV output.
func (rt *Runtime) Drain(node *Node, request *sim.Request) {
	if rt.Metrics != nil {
		rt.Metrics.Drain(node, request)
	}
}
