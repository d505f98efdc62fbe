package dag

import (
	"fmt"

	"github.com/faas-sim/faas-sim/sim"
)

// Releaser accepts a request that has just become eligible to run (every
// predecessor has finished) for submission into the cluster on the next
// network-delay tick. cluster.Cluster implements this.
type Releaser interface {
	Release(request *sim.Request)
}

// Clock reports the current virtual time, used to stamp a released
// request's ArrivalTime.
type Clock interface {
	Now() int64
}

// flow is one in-flight DAG invocation's dependency bookkeeping: a
// countdown of unfinished predecessors per node, matching the reference
// implementation's _Flow_ dataclass.
type flow struct {
	graph     *Graph
	counters  map[string]int
	numEdges  int
}

func newFlow(g *Graph) *flow {
	f := &flow{graph: g, counters: make(map[string]int, len(g.Nodes)), numEdges: g.NumEdges()}
	for _, node := range g.Nodes {
		f.counters[node] = g.PredecessorCount(node)
	}
	return f
}

func (f *flow) remaining() int {
	n := 0
	for _, c := range f.counters {
		n += c
	}
	return n
}

func (f *flow) completionRate() float64 {
	if f.numEdges == 0 {
		return 0
	}
	return float64(f.numEdges-f.remaining()) / float64(f.numEdges)
}

// Engine tracks every in-flight flow's dependency counters and releases a
// node's successors once its last predecessor finishes, implementing
// cluster.FlowTracker. It depends only on the Releaser/Clock interfaces
// passed in at construction, not on the cluster package; sim/cluster in turn
// only knows its own FlowTracker interface, so neither package imports the
// other and cmd wires the Engine in.
type Engine struct {
	graphs   map[string]*Graph
	flows    map[int64]*flow
	releaser Releaser
	clock    Clock

	maxDurationMilli int64

	finished map[string]int
	failed   map[string]int
}

// NewEngine creates an Engine that releases ready successors through
// releaser, stamping them with clock's current time. maxDurationMilli caps
// a released request's duration (mirroring request.MAX_DURATION_SEC).
func NewEngine(releaser Releaser, clock Clock, maxDurationMilli int64) *Engine {
	return &Engine{
		graphs:           make(map[string]*Graph),
		flows:            make(map[int64]*flow),
		releaser:         releaser,
		clock:            clock,
		maxDurationMilli: maxDurationMilli,
		finished:         make(map[string]int),
		failed:           make(map[string]int),
	}
}

// RegisterGraph makes g available for new flows to reference by name.
func (e *Engine) RegisterGraph(g *Graph) {
	e.graphs[g.Name] = g
}

// Graph resolves a registered graph by name.
func (e *Engine) Graph(name string) (*Graph, bool) {
	g, ok := e.graphs[name]
	return g, ok
}

// AddFlow registers a new in-flight invocation of dagName under flowID.
func (e *Engine) AddFlow(flowID int64, dagName string) {
	g, ok := e.graphs[dagName]
	if !ok {
		panic(fmt.Sprintf("dag: unknown graph %q", dagName))
	}
	e.flows[flowID] = newFlow(g)
}

// Len reports how many flows are still in flight, satisfying the
// cluster.Cluster.IsFinished soft interface check.
func (e *Engine) Len() int {
	return len(e.flows)
}

// Dereference implements cluster.FlowTracker: on a failed request, it
// tallies the failure and deletes the flow once every replica of that
// request has either finished or failed; on a successful request, it
// decrements each successor's predecessor counter and releases any
// successor whose counter reaches zero.
func (e *Engine) Dereference(request *sim.Request) {
	f, ok := e.flows[request.FlowID]
	if !ok {
		// Already swept (e.g. a duplicate execution's second replica
		// finishing after the flow was already torn down on failure).
		return
	}

	if request.Failed {
		e.failed[request.ReqID]++
		if e.failed[request.ReqID]+e.finished[request.ReqID] == request.NumReplicas {
			delete(e.flows, request.FlowID)
		}
		return
	}
	e.finished[request.ReqID]++

	if f.remaining() == 0 {
		delete(e.flows, request.FlowID)
	}

	for _, successor := range f.graph.Successors(request.Dest) {
		f.counters[successor]--
		if f.counters[successor] != 0 {
			continue
		}
		spec := f.graph.Specs[successor]
		duration := spec.DurationMilli
		if e.maxDurationMilli > 0 && duration > e.maxDurationMilli {
			duration = e.maxDurationMilli
		}
		released := sim.NewRequest(request.FlowID, -999, successor, duration, spec.MemoryMib, request.DagName)
		released.ArrivalTime = e.clock.Now()
		e.releaser.Release(released)
	}
}

// CompletionRate returns the fraction of flowID's edges whose downstream
// dependency has already been satisfied, and whether the flow is still
// tracked.
func (e *Engine) CompletionRate(flowID int64) (float64, bool) {
	f, ok := e.flows[flowID]
	if !ok {
		return 0, false
	}
	return f.completionRate(), true
}
