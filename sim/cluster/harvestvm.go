package cluster

import (
	"github.com/faas-sim/faas-sim/sim"
)

// NewHarvestVM creates a Node of kind HarvestVM whose core count tracks an
// external per-second schedule (keyed by a hash identifying a specific
// historical trace) and which can die at any moment according to a
// survival draw. If hash is not recognized by table, the zeroth available
// hash is used instead.
//
// A HarvestVM is not a distinct Go type embedding Node: its survival/harvest
// behavior is dispatched from Node.Run by Kind, since Go's struct embedding
// does not give virtual dispatch — a *Node field on a wrapper type would not
// override the base Run when stored and called through the wrapper's
// embedded pointer.
func NewHarvestVM(id NodeID, name string, hash string, memoryMib int64, startTime int64, maxNumInstances int, baseHazardPerSec float64, table CoresScheduleProvider, predictor SurvivalPredictor) *Node {
	schedule, ok := table.Schedule(hash)
	if !ok {
		hashes := table.Hashes()
		if len(hashes) > 0 {
			hash = hashes[0]
			schedule, _ = table.Schedule(hash)
		}
	}

	n := &Node{
		ID:              id,
		Name:            name,
		Kind:            WorkerHarvestVM,
		StartTime:       startTime,
		MemoryMib:       memoryMib,
		MaxNumInstances: maxNumInstances,
		BaseHazardMilli: baseHazardPerSec / 1000,
		Hash:            hash,
		schedule:        schedule,
		SurvivalPred:    predictor,
		CoresTable:      table,
		survivalPredCkp: startTime,
		harvestCkp:      startTime,
	}
	n.NumCores = n.harvestCoreCount(startTime, startTime)
	n.cpuRegistry = make([]InstanceID, n.NumCores)
	n.ensureRateLimiters()
	return n
}

// harvestCoreCount looks up how many cores the trace grants at the given
// lifetime, wrapping around the schedule if the VM outlives it.
func (n *Node) harvestCoreCount(now, startTime int64) int {
	if len(n.schedule) == 0 {
		return 0
	}
	lifetimeSec := (now - startTime) / 1000
	idx := int(lifetimeSec % int64(len(n.schedule)))
	if idx < 0 {
		idx = 0
	}
	return n.schedule[idx]
}

// Die preempts every instance this HarvestVM hosts, then removes itself
// from the runtime so no further requests can be scheduled onto it.
func (n *Node) Die(rt *Runtime) {
	n.Preempt(rt, append([]InstanceID(nil), n.Instances...), false)
	rt.RemoveNode(n.ID)
}

// runHarvestVM is Node.Run's HarvestVM branch: on the configured survival
// check period, draw whether the VM dies; if it survives, run normally and
// then, on the configured harvest period, re-sample its core count.
func (n *Node) runHarvestVM(rt *Runtime) {
	now := rt.Now()
	hc := rt.Config.HarvestVM

	isDead := false
	if now >= n.survivalPredCkp+hc.SurvivalPredictPeriodMilli {
		n.survivalPredCkp = now
		u := rt.RNG.ForSubsystem(SubsystemSurvival).Float64()
		prob := n.SurvivalPred.Survive(now - n.StartTime)
		if u > prob || n.NumCores == 0 {
			sim.Log.WithClock(now).Infof("(hvm) %s died", n.Name)
			n.Die(rt)
			isDead = true
		} else {
			n.runWorker(rt)
		}
	} else {
		n.runWorker(rt)
	}

	if !isDead && hc.EnableHarvest && now >= n.harvestCkp+hc.HarvestPeriodMilli {
		n.Harvest(rt)
		n.harvestCkp = now
	}
}

// Harvest re-samples the node's core count from the trace schedule and
// grows or shrinks the CPU registry to match, context-switching out
// running instances as needed to shrink.
func (n *Node) Harvest(rt *Runtime) {
	target := n.harvestCoreCount(rt.Now(), n.StartTime)
	diff := target - n.NumCores
	if diff == 0 {
		return
	}

	if diff > 0 {
		sim.Log.WithClock(rt.Now()).Infof("(hvm) grow: %d -> %d", n.NumCores, target)
		n.cpuRegistry = append(n.cpuRegistry, make([]InstanceID, diff)...)
	} else {
		sim.Log.WithClock(rt.Now()).Infof("(hvm) shrink: %d -> %d", n.NumCores, target)
		numToRemove := -diff
		availCores := len(n.GetAvailableCoreIDs())
		numToPreempt := numToRemove - availCores

		var toPreempt []InstanceID
		if numToPreempt > 0 {
			var running []InstanceID
			for _, id := range n.cpuRegistry {
				if id != "" {
					running = append(running, id)
				}
			}
			toPreempt = chooseN(rt.RNG.ForNode(n.ID), running, numToPreempt)
			n.Preempt(rt, toPreempt, true)
		}

		preemptSet := make(map[InstanceID]bool, len(toPreempt))
		for _, id := range toPreempt {
			preemptSet[id] = true
		}
		for core, id := range n.cpuRegistry {
			if preemptSet[id] {
				n.cpuRegistry[core] = ""
			}
		}
		n.compactCPURegistry()
		n.cpuRegistry = n.cpuRegistry[:len(n.cpuRegistry)-numToRemove]
	}
	n.NumCores = target
}

// compactCPURegistry moves every occupied core to the front of the
// registry, so that shrinking by truncating the tail never drops a core
// still hosting an instance.
func (n *Node) compactCPURegistry() {
	compacted := make([]InstanceID, len(n.cpuRegistry))
	next := 0
	for _, id := range n.cpuRegistry {
		if id != "" {
			compacted[next] = id
			next++
		}
	}
	n.cpuRegistry = compacted
}

// chooseN draws k distinct elements from items uniformly at random (with
// replacement disabled by removing chosen indices), matching the reference
// implementation's random eviction-victim policy.
func chooseN(rng interface{ Intn(int) int }, items []InstanceID, k int) []InstanceID {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if k > len(items) {
		k = len(items)
	}
	pool := append([]InstanceID(nil), items...)
	chosen := make([]InstanceID, 0, k)
	for i := 0; i < k; i++ {
		idx := rng.Intn(len(pool))
		chosen = append(chosen, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return chosen
}
