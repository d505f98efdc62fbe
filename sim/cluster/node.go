package cluster

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/faas-sim/faas-sim/sim"
)

// spawnEvictRateLimit caps how many instances a node may create or evict
// within a single virtual second — a simple admission control so a large
// scale-up/scale-down binding doesn't all land in the same tick.
const spawnEvictRateLimit = 3

// SchedulingBinding is the controller's unit of work, roughly a Kubernetes
// Deployment's replica-count delta: positive quantity asks the node to
// create instances, negative asks it to remove them.
type SchedulingBinding struct {
	SchedTime int64
	Func      string
	Quantity  int
}

// Node is a worker VM hosting zero or more Instances. Its CPU registry is
// an ordered core->instance mapping; admission into that registry is FCFS
// via the runqueue (BookCores), not a priority scheduler. Node serves both
// always-on VMs and HarvestVMs: Kind selects which behavior Run dispatches
// to, since the HarvestVM fields below live directly on Node rather than on
// a separate embedding wrapper type.
type Node struct {
	ID       NodeID
	Name     string
	Kind     WorkerKind
	StartTime int64

	NumCores       int
	MemoryMib      int64
	MaxNumInstances int

	cpuRegistry []InstanceID // index = core id; "" = free
	Instances   []InstanceID
	creationQueue []*Instance
	evictionQueue []InstanceID

	runqueue          []InstanceID
	controllerWorkqueue []*SchedulingBinding

	spawnLimiter *rate.Limiter
	evictLimiter *rate.Limiter

	BaseHazardMilli float64

	// HarvestVM-only state (zero value for an always-on VM). Kept on Node
	// rather than a wrapper type embedding Node, since Go's embedding does
	// not give Run virtual dispatch through a stored base pointer.
	Hash            string
	schedule        []int
	SurvivalPred    SurvivalPredictor
	CoresTable      CoresScheduleProvider
	survivalPredCkp int64
	harvestCkp      int64
}

func virtualTime(nowMilli int64) time.Time {
	return time.Unix(0, nowMilli*int64(time.Millisecond))
}

// NewNode creates a node with numCores cores (scaled down by the
// configured infra CPU overhead ratio, matching the reference Node
// constructor).
func NewNode(id NodeID, name string, numCores int, memoryMib int64, startTime int64, maxNumInstances int, infraOverheadRatio float64) *Node {
	effectiveCores := int(float64(numCores) * (1 - infraOverheadRatio))
	return &Node{
		ID:              id,
		Name:            name,
		Kind:            WorkerNormalVM,
		StartTime:       startTime,
		NumCores:        effectiveCores,
		MemoryMib:       memoryMib,
		MaxNumInstances: maxNumInstances,
		cpuRegistry:     make([]InstanceID, effectiveCores),
		spawnLimiter:    rate.NewLimiter(rate.Limit(spawnEvictRateLimit), spawnEvictRateLimit),
		evictLimiter:    rate.NewLimiter(rate.Limit(spawnEvictRateLimit), spawnEvictRateLimit),
	}
}

func (n *Node) String() string { return n.Name }

// ensureRateLimiters lazily creates the spawn/evict rate limiters, used by
// NewHarvestVM which shares NewNode's limiter setup via this instead of
// duplicating it.
func (n *Node) ensureRateLimiters() {
	if n.spawnLimiter == nil {
		n.spawnLimiter = rate.NewLimiter(rate.Limit(spawnEvictRateLimit), spawnEvictRateLimit)
	}
	if n.evictLimiter == nil {
		n.evictLimiter = rate.NewLimiter(rate.Limit(spawnEvictRateLimit), spawnEvictRateLimit)
	}
}

// Run advances this node by one tick. A HarvestVM node additionally runs
// its survival check and harvest (core grow/shrink) behavior; a normal VM
// just spawns/evicts pending instances and runs every hosted instance.
func (n *Node) Run(rt *Runtime) {
	if n.Kind == WorkerHarvestVM {
		n.runHarvestVM(rt)
		return
	}
	n.runWorker(rt)
}

// runWorker is the common spawn/evict/run-instances tick shared by every
// node kind.
func (n *Node) runWorker(rt *Runtime) {
	n.Spawn(rt)
	n.Evict(rt)
	for _, id := range n.Instances {
		if inst := rt.Instance(id); inst != nil {
			inst.Run(rt)
		}
	}
}

// GetUtilizations returns (cpuUtilizationPct, memoryUsagePct) for this
// node, counting every instance on the node (whatever its status) toward
// memory use.
func (n *Node) GetUtilizations(rt *Runtime) (float64, float64) {
	occupancy := 0
	for _, id := range n.cpuRegistry {
		if id != "" {
			occupancy++
		}
	}
	cpuUtil := 0.0
	if n.NumCores > 0 {
		cpuUtil = float64(occupancy) / float64(n.NumCores) * 100
	}

	memUsed := int64(0)
	for _, id := range n.Instances {
		inst := rt.Instance(id)
		if inst == nil {
			continue
		}
		if inst.HostedJob != nil {
			memUsed += int64(inst.HostedJob.Memory) + rt.Config.Node.JobMemoryOverheadMib
		} else {
			memUsed += rt.Config.Node.InstanceSizeMib
		}
	}
	memUsage := 0.0
	if n.MemoryMib > 0 {
		memUsage = float64(memUsed) / float64(n.MemoryMib) * 100
	}
	return cpuUtil, memUsage
}

// GetAvailableCoreIDs returns the core indices currently unoccupied.
func (n *Node) GetAvailableCoreIDs() []int {
	return lo.FilterMap(n.cpuRegistry, func(id InstanceID, core int) (int, bool) {
		return core, id == ""
	})
}

// BookCores attempts to allocate vcpu cores to instanceID, admitting it
// via a strict FCFS runqueue: only the head of the runqueue may book, and
// booking fails (putting the instance back at the front) if not enough
// cores are free yet.
func (n *Node) BookCores(instanceID InstanceID, vcpu int) bool {
	idx := indexOf(n.runqueue, instanceID)
	if idx < 0 {
		n.runqueue = append(n.runqueue, instanceID)
		idx = len(n.runqueue) - 1
	}
	if idx != 0 {
		return false
	}
	n.runqueue = n.runqueue[1:]

	avail := n.GetAvailableCoreIDs()
	if len(avail) < vcpu {
		n.runqueue = append([]InstanceID{instanceID}, n.runqueue...)
		return false
	}
	for _, core := range avail[:vcpu] {
		n.cpuRegistry[core] = instanceID
	}
	return true
}

// YieldCores releases every core held by instanceID.
func (n *Node) YieldCores(instanceID InstanceID) {
	for core, id := range n.cpuRegistry {
		if id == instanceID {
			n.cpuRegistry[core] = ""
		}
	}
}

func indexOf(ids []InstanceID, target InstanceID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

// Bind enqueues a scheduling binding requesting a change (positive: scale
// up, negative: scale down) in the number of instances of fn on this node.
func (n *Node) Bind(now int64, fn string, quantity int) {
	n.controllerWorkqueue = append(n.controllerWorkqueue, &SchedulingBinding{
		SchedTime: now,
		Func:      fn,
		Quantity:  quantity,
	})
}

// Preempt removes instances from this node directly, bypassing the
// scheduler. context_switch true performs a soft preemption (halt + requeue
// onto the runqueue); false performs a hard preemption (stop + mark
// TERMINATING with a notification deadline).
func (n *Node) Preempt(rt *Runtime, instanceIDs []InstanceID, contextSwitch bool) {
	matched := 0
	for _, id := range instanceIDs {
		if indexOf(n.Instances, id) < 0 {
			panic(fmt.Sprintf("preemption target not found: %s", id))
		}
		matched++
		inst := rt.Instance(id)
		if inst == nil {
			continue
		}
		if !contextSwitch {
			inst.Stop(rt, true)
			deadline := rt.Now() + rt.Config.HarvestVM.PreemptionNotificationSec*1000
			inst.Status = InstanceTerminating
			inst.Deadline = deadline
			inst.HasDeadline = true
		} else {
			inst.Halt(rt)
			n.runqueue = append(n.runqueue, id)
		}
	}
	if matched != len(instanceIDs) {
		panic(fmt.Sprintf("%d preemption targets not found", len(instanceIDs)-matched))
	}
}

// Kill requests the removal of num IDLE instances of fn from this node,
// returning the remainder that could not be satisfied here (the caller,
// typically the scheduler, must find capacity elsewhere for the rest).
func (n *Node) Kill(rt *Runtime, fn string, num int) int {
	matched := lo.CountBy(n.Instances, func(id InstanceID) bool {
		inst := rt.Instance(id)
		return inst != nil && inst.Func == fn && inst.Status == InstanceIdle
	})
	if matched == 0 {
		n.controllerWorkqueue = lo.Filter(n.controllerWorkqueue, func(b *SchedulingBinding, _ int) bool {
			return !(b.Func == fn && b.Quantity <= 0)
		})
		return num
	}

	remaining := num - matched
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 {
		n.Bind(rt.Now(), fn, -num)
	} else {
		n.Bind(rt.Now(), fn, -matched)
	}
	return remaining
}

// IsColdStart reports whether no RUNNING instance of fn currently exists
// on this node, which governs whether the next creation pays the cold or
// warm instance-creation delay.
func (n *Node) IsColdStart(rt *Runtime, fn string) bool {
	for _, id := range n.Instances {
		inst := rt.Instance(id)
		if inst != nil && inst.Func == fn && inst.Status == InstanceRunning {
			return false
		}
	}
	return true
}

// GetNumAvailableSlots returns how many more instances this node can host
// before hitting MaxNumInstances.
func (n *Node) GetNumAvailableSlots() int {
	avail := n.MaxNumInstances - len(n.Instances)
	if avail < 0 {
		avail = 0
	}
	if avail > n.MaxNumInstances {
		avail = n.MaxNumInstances
	}
	return avail
}

// Spawn creates new instances whose creation delay has elapsed, rate
// limited to spawnEvictRateLimit per virtual second.
func (n *Node) Spawn(rt *Runtime) {
	now := rt.Now()
	created := 0
	for len(n.creationQueue) > 0 {
		inst := n.creationQueue[0]
		if now < inst.StartTime {
			break
		}
		if !n.spawnLimiter.AllowN(virtualTime(now), 1) {
			break
		}
		n.creationQueue = n.creationQueue[1:]
		n.Instances = append(n.Instances, inst.ID)
		rt.AddInstance(inst)
		if tracker := rt.Throttler.Trackers[inst.Func]; tracker != nil {
			tracker.Instances = append(tracker.Instances, inst.ID)
		}
		created++
	}
	_ = created
}

// Evict removes instances whose eviction deadline has elapsed, rate
// limited to spawnEvictRateLimit per virtual second.
func (n *Node) Evict(rt *Runtime) {
	now := rt.Now()
	removed := 0
	for len(n.evictionQueue) > 0 {
		id := n.evictionQueue[0]
		inst := rt.Instance(id)
		if inst == nil {
			n.evictionQueue = n.evictionQueue[1:]
			continue
		}
		if now < inst.Deadline {
			break
		}
		if !n.evictLimiter.AllowN(virtualTime(now), 1) {
			break
		}
		n.evictionQueue = n.evictionQueue[1:]
		n.Instances = removeInstanceID(n.Instances, id)
		rt.RemoveInstance(id)
		if tracker := rt.Throttler.Trackers[inst.Func]; tracker != nil {
			tracker.Instances = removeInstanceID(tracker.Instances, id)
		}
		removed++
	}
	_ = removed
}

func removeInstanceID(ids []InstanceID, target InstanceID) []InstanceID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Reconcile is the node's control loop: it drains controllerWorkqueue
// bindings, creating or tearing down instances within this tick's
// creation/deletion budget, mirroring a Kubernetes controller's reconcile
// pass. It returns an error rather than panicking on an invariant
// violation, so Cluster.reconcile can aggregate failures across every node
// in a single pass before deciding whether to abort.
func (n *Node) Reconcile(rt *Runtime) error {
	now := rt.Now()
	creationBudget := n.MaxNumInstances - len(n.Instances)
	deletionBudget := 100

	remainingWorkqueue := n.controllerWorkqueue[:0:0]
	for _, binding := range n.controllerWorkqueue {
		if creationBudget <= 0 && deletionBudget <= 0 {
			remainingWorkqueue = append(remainingWorkqueue, binding)
			continue
		}

		switch {
		case binding.Quantity > 0 && creationBudget > 0:
			criDelay := rt.Config.Node.WarmInstanceCreationDelayMilli
			if n.IsColdStart(rt, binding.Func) {
				criDelay = rt.Config.Node.ColdInstanceCreationDelayMilli
			}
			numNew := binding.Quantity
			if numNew > creationBudget {
				numNew = creationBudget
			}
			creationBudget -= numNew
			binding.Quantity -= numNew

			fn := rt.Function(binding.Func)
			vcpu := 1
			if fn != nil {
				vcpu = fn.VCPU
			}
			for k := 0; k < numNew; k++ {
				id := rt.NewInstanceID(binding.Func)
				inst := NewInstance(id, binding.Func, n.ID, now+criDelay, vcpu)
				n.creationQueue = append(n.creationQueue, inst)
			}
			if binding.Quantity != 0 {
				remainingWorkqueue = append(remainingWorkqueue, binding)
			}

		case binding.Quantity < 0 && deletionBudget > 0:
			numToTerminate := -binding.Quantity
			if numToTerminate > deletionBudget {
				numToTerminate = deletionBudget
			}
			deadline := now + rt.Config.Node.InstanceGracePeriodSec*1000

			terminated := 0
			for _, id := range n.Instances {
				if terminated >= numToTerminate {
					break
				}
				inst := rt.Instance(id)
				if inst == nil || inst.Func != binding.Func || inst.Status != InstanceIdle {
					continue
				}
				inst.Status = InstanceTerminating
				inst.Deadline = deadline
				inst.HasDeadline = true
				n.evictionQueue = append(n.evictionQueue, id)
				terminated++
			}
			deletionBudget -= terminated

			remaining := numToTerminate - terminated
			switch {
			case remaining > 0:
				binding.Quantity = -remaining
				remainingWorkqueue = append(remainingWorkqueue, binding)
			case remaining < 0:
				n.controllerWorkqueue = remainingWorkqueue
				return fmt.Errorf("node %s: terminated more instances than requested for %s", n.Name, binding.Func)
			}

		default:
			remainingWorkqueue = append(remainingWorkqueue, binding)
		}
	}
	n.controllerWorkqueue = remainingWorkqueue
	return nil
}

// Hazard returns the node's instantaneous death hazard in milliseconds
// (only meaningful for HarvestVM; zero for a normal VM).
func (n *Node) Hazard() float64 {
	return n.BaseHazardMilli
}

// SurvivalProb returns the node's current survival probability, used in the
// per-request drain record: always 1 for a normal VM, and the configured
// predictor's estimate at the node's current age for a HarvestVM.
func (n *Node) SurvivalProb(now int64) float64 {
	if n.Kind != WorkerHarvestVM || n.SurvivalPred == nil {
		return 1.0
	}
	return n.SurvivalPred.Survive(now - n.StartTime)
}
