package workload

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/cluster"
	"github.com/faas-sim/faas-sim/sim/dag"
)

// Mode names one of the five arrival processes the CLI can drive.
type Mode string

const (
	ModeTest      Mode = "test"
	ModeBenchmark Mode = "benchmark"
	ModeDAG       Mode = "dag"
	ModeTrace     Mode = "trace"
	ModeRPS       Mode = "rps"
)

// RPSStep is one (rate, duration) segment of an --mode rps sweep.
type RPSStep struct {
	RPS           float64
	DurationMilli int64
}

// DefaultRPSSweep mirrors run_rps_mode's built-in sweep: 1 through 18
// requests/sec, 60 virtual seconds per step.
func DefaultRPSSweep() []RPSStep {
	steps := make([]RPSStep, 0, 18)
	for rps := 1; rps <= 18; rps++ {
		steps = append(steps, RPSStep{RPS: float64(rps), DurationMilli: 60_000})
	}
	return steps
}

// Generator drives a Cluster's arrival process: it builds Requests,
// submits them via Cluster.IngressAccept, and ticks the cluster's virtual
// clock forward one millisecond at a time until every flow it submitted
// has drained.
type Generator struct {
	Cluster *cluster.Cluster
	RNG     *rand.Rand

	// FlowIDFunc allocates the next flow ID. Defaults to a uuid-derived
	// generator (matching nova's request-ID pattern) when nil; RunTrace
	// and RunTraceSchedule always use an explicit sequential counter
	// instead, since a flow ID there must be addressable back to the
	// loaded DAG bundle.
	FlowIDFunc func() int64
}

// NewGenerator creates a Generator driving c, using rng for arrival
// jitter and system-tax-independent sampling (e.g. the rps-mode duration
// jitter below saturation).
func NewGenerator(c *cluster.Cluster, rng *rand.Rand) *Generator {
	return &Generator{Cluster: c, RNG: rng}
}

func (g *Generator) nextFlowID() int64 {
	if g.FlowIDFunc != nil {
		return g.FlowIDFunc()
	}
	return uuidFlowID()
}

// uuidFlowID derives an int64 flow identifier from a fresh random UUID.
// Flow IDs are never fed back into the seeded RNG streams or used to make
// scheduling decisions, so drawing them from crypto/rand (via
// google/uuid, not math/rand) doesn't compromise run-to-run reproducibility
// of the simulation's actual trajectory — only the cosmetic flow_id label
// in the output CSV varies between runs with identical seeds.
func uuidFlowID() int64 {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	return int64(v &^ (1 << 63))
}

// RandomNodeName returns a random (not necessarily unique) worker/function
// display name for
// synthetic (non-trace) cluster construction, using go-randomdata's
// silly-name generator instead of a bare "node-<i>"/"func-<i>" counter.
func RandomNodeName() string {
	return strings.ToLower(strings.ReplaceAll(randomdata.SillyName(), " ", "-"))
}

// SyntheticFunctions builds n placeholder functions for test/rps-mode
// clusters, each with a unique go-randomdata-derived name.
func SyntheticFunctions(n, vcpu, concurrencyLimit int) []*sim.Function {
	fns := make([]*sim.Function, n)
	for i := range fns {
		fns[i] = sim.NewFunction(fmt.Sprintf("%s-%d", RandomNodeName(), i), vcpu, concurrencyLimit)
	}
	return fns
}

// SyntheticNodes builds n worker nodes for test/rps/benchmark-mode
// clusters, each with a unique go-randomdata-derived name.
func SyntheticNodes(n, numCores int, memoryMib, startTime int64, maxNumInstances int) []*cluster.Node {
	nodes := make([]*cluster.Node, n)
	for i := range nodes {
		name := fmt.Sprintf("%s-%d", RandomNodeName(), i)
		nodes[i] = cluster.NewNode(cluster.NodeID(name), name, numCores, memoryMib, startTime, maxNumInstances, 0)
	}
	return nodes
}

// driveArrivals submits len(arrivalTimes) flows, one per entry, calling
// invoke(idx, flowID) exactly when the virtual clock reaches
// arrivalTimes[idx]. Two entries sharing a timestamp are both invoked
// within the same tick, matching the reference implementation's
// "only advance the clock when the next timestamp differs" arrival loops.
// Once every arrival has been submitted, the cluster is ticked until
// IsFinished reports no more in-flight work.
func (g *Generator) driveArrivals(arrivalTimes []int64, invoke func(idx int, flowID int64)) {
	rt := g.Cluster.RT
	total := len(arrivalTimes)
	idx := 0
	for idx < total {
		ts := rt.Now()
		if ts == arrivalTimes[idx] {
			invoke(idx, g.nextFlowID())
			idx++
			if idx == total {
				break
			}
			if arrivalTimes[idx-1] != arrivalTimes[idx] {
				rt.Clock.Advance(1)
			}
		} else {
			rt.Clock.Advance(1)
		}
		g.Cluster.Tick()
	}
	g.drain()
}

func (g *Generator) drain() {
	rt := g.Cluster.RT
	for !g.Cluster.IsFinished() {
		g.Cluster.Tick()
		rt.Clock.Advance(1)
	}
}

// benchmarkFlowCount restores the --invocations // max(width, depth)-ish
// derivation from run_benchmark_mode: the total number of whole-DAG
// invocations is invocations divided by depth (a single-branch chain) or
// by width (a fan-out tree), whichever the synthetic graph actually has.
func benchmarkFlowCount(invocations, width, depth int) int {
	divisor := width
	if width == 1 {
		divisor = depth
	}
	if divisor <= 0 {
		divisor = 1
	}
	return invocations / divisor
}

// RunSynthetic drives --mode benchmark and --mode dag: a single balanced-
// tree DAG generated by dag.Synthetic, invoked totalFlows times (derived
// via benchmarkFlowCount) at Poisson arrival times. It registers the
// generated graph with engine and returns it.
func (g *Generator) RunSynthetic(engine *dag.Engine, width, depth, invocations int, rps float64, durationMilli int64, memoryMib, vcpu int) *dag.Graph {
	graph := dag.Synthetic("gen_dag", width, depth, durationMilli, memoryMib, vcpu)
	engine.RegisterGraph(graph)

	totalFlows := benchmarkFlowCount(invocations, width, depth)
	arrivalTimes := PoissonArrivalsMilli(rps, totalFlows, g.RNG)
	roots := graph.Roots()
	rt := g.Cluster.RT

	g.driveArrivals(arrivalTimes, func(_ int, flowID int64) {
		engine.AddFlow(flowID, graph.Name)
		for _, root := range roots {
			spec := graph.Specs[root]
			req := sim.NewRequest(flowID, int(rps), root, spec.DurationMilli, spec.MemoryMib, graph.Name)
			req.ArrivalTime = rt.Now()
			g.Cluster.IngressAccept(req)
		}
	})

	return graph
}

// RunTrace drives --mode trace in its default (no CSV schedule) shape:
// every graph in bundle is invoked exactly once, at Poisson arrival times
// over the bundle's size, mirroring run_trace_mode's "one flow per
// pickled DAG" semantics. Every graph must be single-rooted. Flow IDs are
// the bundle's own 0-based index, not uuid-derived, so a released
// successor's DagName/graph lookup stays addressable.
func (g *Generator) RunTrace(engine *dag.Engine, bundle []*dag.Graph, rps float64, maxDurationMilli int64) error {
	arrivalTimes := PoissonArrivalsMilli(rps, len(bundle), g.RNG)
	rt := g.Cluster.RT

	for _, graph := range bundle {
		engine.RegisterGraph(graph)
	}

	var invokeErr error
	g.driveArrivals(arrivalTimes, func(idx int, _ int64) {
		graph := bundle[idx]
		roots := graph.Roots()
		if len(roots) != 1 {
			invokeErr = fmt.Errorf("dag %s has %d roots, want exactly 1", graph.Name, len(roots))
			return
		}
		flowID := int64(idx)
		engine.AddFlow(flowID, graph.Name)
		spec := graph.Specs[roots[0]]
		duration := spec.DurationMilli
		if maxDurationMilli > 0 && duration > maxDurationMilli {
			duration = maxDurationMilli
		}
		req := sim.NewRequest(flowID, int(rps), roots[0], duration, spec.MemoryMib, graph.Name)
		req.ArrivalTime = rt.Now()
		g.Cluster.IngressAccept(req)
	})

	return invokeErr
}

// RunTraceSchedule drives --mode trace when an explicit CSV invocation
// schedule is supplied (the original implementation's run_dag_mode): each
// InvocationRecord fires NumInvocations flows of its DagName, all starting
// at the record's root(s), with the instantaneous RPS recomputed from the
// running invocation count divided by elapsed time since the previous
// record (matching `rps = round(inv_count / (ts - prev_ts + 1), 3)`).
func (g *Generator) RunTraceSchedule(engine *dag.Engine, dags map[string]*dag.Graph, records []InvocationRecord, maxDurationMilli int64) error {
	if len(records) == 0 {
		return nil
	}
	for _, graph := range dags {
		engine.RegisterGraph(graph)
	}

	rt := g.Cluster.RT
	if lead := records[0].Timestamp - rt.Now() - 1; lead > 0 {
		rt.Clock.Advance(lead)
	}

	var flowID int64 = -1
	var invCount int64
	prevTs := int64(0)
	idx := 0

	for idx < len(records) {
		ts := rt.Now()
		record := records[idx]
		if ts == record.Timestamp {
			invCount += int64(record.NumInvocations)
			rps := math.Round(float64(invCount)/float64(ts-prevTs+1)*1000) / 1000
			prevTs = ts

			graph, ok := dags[record.DagName]
			if !ok {
				return fmt.Errorf("trace schedule references unknown dag %q", record.DagName)
			}
			roots := graph.Roots()

			for i := 0; i < record.NumInvocations; i++ {
				flowID++
				engine.AddFlow(flowID, record.DagName)
				for _, root := range roots {
					spec := graph.Specs[root]
					duration := spec.DurationMilli
					if maxDurationMilli > 0 && duration > maxDurationMilli {
						duration = maxDurationMilli
					}
					req := sim.NewRequest(flowID, int(rps), root, duration, spec.MemoryMib, record.DagName)
					req.ArrivalTime = rt.Now()
					g.Cluster.IngressAccept(req)
				}
			}

			idx++
			if idx == len(records) {
				break
			}
			if records[idx].Timestamp != ts {
				rt.Clock.Advance(1)
			}
		} else {
			rt.Clock.Advance(1)
		}
		g.Cluster.Tick()
	}

	g.drain()
	return nil
}

// RunTest drives --mode test: a Poisson-free arrival process (pure periodic
// IAT of 1000/rps ms) spread round-robin over functionNames, on whatever
// workers the cluster already has, for durationMinutes of virtual time, mirroring run_test_mode exactly
// (including its unconditional per-tick clock advance).
func (g *Generator) RunTest(functionNames []string, rps float64, runtimeMilli int64, memoryMib int, durationMinutes float64) {
	iatMilli := int64(1000 / rps)
	numInvocations := int(math.Ceil(durationMinutes * 60 * 1000 / float64(iatMilli)))

	rt := g.Cluster.RT
	inv := 0
	nextArrival := int64(0)
	t := int64(-1)
	for !(inv >= numInvocations && g.Cluster.IsFinished()) {
		t++
		if t == nextArrival && inv < numInvocations {
			name := functionNames[inv%len(functionNames)]
			req := sim.NewRequest(g.nextFlowID(), int(rps), name, runtimeMilli, memoryMib, "")
			req.ArrivalTime = rt.Now()
			g.Cluster.IngressAccept(req)
			nextArrival += iatMilli
			inv++
		}
		g.Cluster.Tick()
		rt.Clock.Advance(1)
	}
}

// RunRPS drives --mode rps: a configured RPS sweep, one single-function
// DAG-free invocation per arrival, cycling destinations round-robin over
// functionNames. Below saturation (rps <= numCores) a request's duration
// is jittered down from runtimeMilli, matching the reference
// implementation's "only fully fulfilled once the server has saturated"
// comment.
func (g *Generator) RunRPS(functionNames []string, steps []RPSStep, numCores int, memoryMib int, runtimeMilli int64) {
	rt := g.Cluster.RT
	invIndex := 0
	for _, step := range steps {
		iatMilli := int64(1000 / step.RPS)
		nextArrival := int64(0)
		for t := int64(0); t < step.DurationMilli; t++ {
			if t == nextArrival {
				name := functionNames[invIndex%len(functionNames)]
				duration := runtimeMilli
				if step.RPS <= float64(numCores) {
					duration = runtimeMilli - 100 + int64(g.RNG.Intn(101))
				}
				req := sim.NewRequest(g.nextFlowID(), int(step.RPS), name, duration, memoryMib, "")
				req.ArrivalTime = rt.Now()
				g.Cluster.IngressAccept(req)
				nextArrival += iatMilli
				invIndex++
			}
			g.Cluster.Tick()
			rt.Clock.Advance(1)
		}
	}
	g.drain()
}
