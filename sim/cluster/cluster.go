package cluster

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/faas-sim/faas-sim/sim"
)

// ClusterSample is one periodic snapshot of cluster-wide resource and
// autoscaling state, taken every MONITORING_PERIOD_MILLI tick and handed to
// MonitorSink for CSV/metrics output.
type ClusterSample struct {
	Timestamp            int64
	RPS                   float64
	ActualScale           int
	DesiredScale          int
	RunningInstances      int
	ActiveInstances       int
	ExistingInstances     int
	TerminatingInstances  int
	WorkerCPUAvg          float64
	WorkerMemAvg          float64
}

// MonitorSink observes cluster-level resource samples, for CSV output.
type MonitorSink interface {
	Observe(sample ClusterSample)
}

// Cluster owns the tick loop: it wires together the Runtime, Throttler,
// Autoscaler and Scheduler and drives them forward in the fixed order and
// fixed sub-periods of the reference control plane's run() method.
type Cluster struct {
	RT *Runtime

	hvmHashes map[string]bool
	hvmCkps   map[string]int64
	numWorkers int

	released *sim.Breaker[*sim.Request]

	Monitor MonitorSink
	RPS     float64
}

// NewCluster wires a Runtime already populated with functions and initial
// nodes into a running Cluster: it creates the Throttler, Autoscaler and
// Scheduler, attaches them to rt, and (if harvestvm.USE_HARVESTVM is set)
// schedules the configured HarvestVM hashes for on-demand creation.
func NewCluster(rt *Runtime, functions []*sim.Function) *Cluster {
	rt.Throttler = NewThrottler(functions)
	rt.Autoscaler = NewAutoscaler(functions)
	rt.Scheduler = NewScheduler()

	c := &Cluster{
		RT:       rt,
		released: sim.NewBreaker[*sim.Request]("Cluster::released", 1_000_000),
	}

	hc := rt.Config.HarvestVM
	c.numWorkers = len(rt.Nodes())
	c.hvmHashes = make(map[string]bool)
	c.hvmCkps = make(map[string]int64)
	if hc.UseHarvestVM {
		n := hc.NumHVMs
		if n > len(hc.Hashes) {
			n = len(hc.Hashes)
		}
		now := rt.Now()
		for _, hash := range hc.Hashes[:n] {
			c.hvmHashes[hash] = true
			c.hvmCkps[hash] = now - hc.SpawnLatencyMilli
		}
		c.numWorkers += len(c.hvmHashes)
	}

	return c
}

// Tick advances the cluster by one virtual millisecond, mirroring the
// reference Cluster.run()'s fixed ordering: HVM maintenance, running every
// node, dispatch, ingress acceptance of one released (DAG-successor or
// externally submitted) request, autoscaling, placement, reconciliation,
// concurrency recording and monitoring — each gated by its own configured
// sub-period.
func (c *Cluster) Tick() {
	rt := c.RT
	now := rt.Now()
	cfg := rt.Config.Cluster

	c.maintainHVMs(now)

	c.runInstances()

	if now%cfg.DispatchPeriodMilli == 0 {
		rt.Throttler.Dispatch(rt)
	}

	if now%cfg.NetworkDelayMilli == 0 {
		if request, ok := c.released.First(); ok {
			c.released.Dequeue(request)
			c.IngressAccept(request)
		}
	}

	if now%cfg.AutoscalingPeriodMilli == 0 {
		rt.Autoscaler.Evaluate(rt)
	}

	if now%cfg.SchedulingPeriodMilli == 0 {
		c.placeInstances()
	}

	if now%cfg.CRIPeriodMilli == 0 {
		c.reconcile()
	}

	if now%cfg.UpdateConcurrencyPeriodMilli == 0 {
		rt.Throttler.RecordConcurrencies()
	}

	if now%cfg.MonitoringPeriodMilli == 0 {
		c.monitor()
	}
}

// runInstances runs every node for this tick. A HarvestVM may remove itself
// from the runtime mid-call (on death), so Nodes() is snapshotted first.
func (c *Cluster) runInstances() {
	for _, node := range c.RT.Nodes() {
		node.Run(c.RT)
	}
}

// maintainHVMs creates any configured HarvestVM hash that is not currently
// present as a live node, once its spawn latency has elapsed since it was
// first found missing.
func (c *Cluster) maintainHVMs(now int64) {
	hc := c.RT.Config.HarvestVM
	if !hc.UseHarvestVM {
		return
	}

	existing := make(map[string]bool)
	for _, node := range c.RT.Nodes() {
		if node.Kind != WorkerHarvestVM {
			continue
		}
		if existing[node.Hash] {
			panic(fmt.Sprintf("duplicate HarvestVM hash %s", node.Hash))
		}
		existing[node.Hash] = true
	}

	created := false
	for hash := range c.hvmHashes {
		if existing[hash] {
			continue
		}
		ckp := c.hvmCkps[hash]
		if ckp == 0 {
			ckp = now
			c.hvmCkps[hash] = now
		}
		if now >= ckp+hc.SpawnLatencyMilli {
			table := DefaultCoresTable(hc.Hashes)
			predictor := ExponentialHazardSurvival{HazardPerMilli: hc.BaseHazard / 1000}
			hvm := NewHarvestVM(NodeID("hvm-"+hash), "hvm-"+hash, hash, 130*1024, now, c.RT.Config.Node.MaxNumInstances, hc.BaseHazard, table, predictor)
			c.RT.AddNode(hvm)
			c.hvmCkps[hash] = 0
			created = true
			sim.Log.WithClock(now).Infof("(cluster) created %s", hvm.Name)
		}
	}

	if len(c.RT.Nodes()) > c.numWorkers {
		panic(fmt.Sprintf("#nodes=%d > numWorkers=%d", len(c.RT.Nodes()), c.numWorkers))
	}

	if created {
		c.RT.ShuffleNodes()
	}
}

// IngressAccept submits an externally-arriving or DAG-released request into
// the throttler.
func (c *Cluster) IngressAccept(request *sim.Request) {
	c.RT.Throttler.Hit(c.RT, request)
	sim.Log.WithClock(c.RT.Now()).Infof("(throttler) arrival %s", request.ReqID)
}

// Release enqueues a request to be accepted into the throttler on the next
// NETWORK_DELAY_MILLI tick, matching the reference implementation's
// released_requests queue fed by both the top-level arrival generator and
// the DAG flow engine's successor releases.
func (c *Cluster) Release(request *sim.Request) {
	c.released.Enqueue(request)
}

// placeInstances asks the scheduler to close the gap between each
// function's desired scale and its throttler tracker's live scale — not the
// autoscaler's own (slower-updating) actual_scale bookkeeping.
func (c *Cluster) placeInstances() {
	rt := c.RT
	for _, fn := range rt.Autoscaler.Order {
		scaler := rt.Autoscaler.Scalers[fn]
		diff := scaler.DesiredScale - rt.Throttler.Trackers[fn].GetScale(rt)
		if diff != 0 {
			rt.Scheduler.Schedule(rt, fn, diff)
		}
	}
}

// reconcile runs every node's control loop, aggregating per-node errors so
// one node's invariant violation doesn't stop the others from reconciling
// this tick.
func (c *Cluster) reconcile() {
	var errs error
	for _, node := range c.RT.Nodes() {
		errs = multierr.Append(errs, node.Reconcile(c.RT))
	}
	if errs != nil {
		sim.Log.Fatalf(c.RT.Now(), "reconcile: %v", errs)
	}
}

// IsFinished reports whether the simulation has nothing left to do: no
// instance anywhere is RUNNING, and (when a DAG flow tracker is attached)
// no flow is still in flight.
func (c *Cluster) IsFinished() bool {
	for _, node := range c.RT.Nodes() {
		for _, id := range node.Instances {
			if inst := c.RT.Instance(id); inst != nil && inst.Status == InstanceRunning {
				return false
			}
		}
	}
	if tracker, ok := c.RT.Flows.(interface{ Len() int }); ok && tracker.Len() > 0 {
		return false
	}
	return true
}

func (c *Cluster) monitor() {
	rt := c.RT
	var totalDesired, totalActual int
	for _, scaler := range rt.Autoscaler.Scalers {
		totalDesired += scaler.DesiredScale
		totalActual += scaler.ActualScale
	}

	var totalActive, totalRunning, totalExisting, totalTerminating int
	var cpuSum, memSum float64
	nodes := rt.Nodes()
	for _, node := range nodes {
		for _, id := range node.Instances {
			inst := rt.Instance(id)
			if inst == nil {
				continue
			}
			totalExisting++
			if inst.Status == InstanceRunning || inst.Status == InstanceIdle {
				totalRunning++
			}
			if inst.Status != InstanceTerminating {
				totalActive++
			} else {
				totalTerminating++
			}
		}
		cpu, mem := node.GetUtilizations(rt)
		cpuSum += cpu
		memSum += mem
	}

	sample := ClusterSample{
		Timestamp:           rt.Now(),
		RPS:                  c.RPS,
		ActualScale:          totalActual,
		DesiredScale:         totalDesired,
		RunningInstances:     totalRunning,
		ActiveInstances:      totalActive,
		ExistingInstances:    totalExisting,
		TerminatingInstances: totalTerminating,
	}
	if len(nodes) > 0 {
		sample.WorkerCPUAvg = cpuSum / float64(len(nodes))
		sample.WorkerMemAvg = memSum/float64(len(nodes)) + float64(rt.Config.Cluster.MemoryUsageOffsetMib)
	}

	if c.Monitor != nil {
		c.Monitor.Observe(sample)
	}
}
