package cluster

import "github.com/faas-sim/faas-sim/sim"

// LoadBalancePolicy dispatches request onto one of tracker's instances,
// returning the instance it landed on and whether a reservation succeeded.
// The chosen InstanceID is reported back to the caller so the throttler can
// attribute a dispatch decision (for the trace.Run recorder in Throttler.Handle) without
// every policy having to know about tracing itself.
type LoadBalancePolicy func(rt *Runtime, tracker *Tracker, request *sim.Request) (InstanceID, bool)

// FirstAvailable reserves a slot on the first instance (in tracker
// registration order) that has one free.
func FirstAvailable(rt *Runtime, tracker *Tracker, request *sim.Request) (InstanceID, bool) {
	for _, id := range tracker.Instances {
		inst := rt.Instance(id)
		if inst == nil {
			continue
		}
		if inst.Reserve(rt, request) {
			return id, true
		}
	}
	return "", false
}

// LeastLoaded first narrows to the least-loaded node hosting an instance
// of this function (fewest queued runqueue entries, ties broken by lowest
// combined CPU+memory utilization), then prefers an IDLE instance there; if
// none is idle, it falls back to trying every instance in order, since
// every instance's queue depth is 1 and a cold start is equally likely
// anywhere.
func LeastLoaded(rt *Runtime, tracker *Tracker, request *sim.Request) (InstanceID, bool) {
	seen := make(map[NodeID]bool)
	var nodeIDs []NodeID
	for _, id := range tracker.Instances {
		inst := rt.Instance(id)
		if inst == nil || seen[inst.Node] {
			continue
		}
		seen[inst.Node] = true
		nodeIDs = append(nodeIDs, inst.Node)
	}

	var llNode NodeID
	if len(nodeIDs) > 0 {
		best := nodeIDs[0]
		bestRunqueue := len(rt.Node(best).runqueue)
		bestUtilSum := sumUtilizations(rt, best)
		for _, id := range nodeIDs[1:] {
			node := rt.Node(id)
			rq := len(node.runqueue)
			utilSum := sumUtilizations(rt, id)
			if rq < bestRunqueue || (rq == bestRunqueue && utilSum < bestUtilSum) {
				best = id
				bestRunqueue = rq
				bestUtilSum = utilSum
			}
		}
		llNode = best
	}

	var idleInstance InstanceID
	for _, id := range tracker.Instances {
		inst := rt.Instance(id)
		if inst != nil && inst.Status == InstanceIdle && inst.Node == llNode {
			idleInstance = id
			break
		}
	}

	if idleInstance != "" {
		inst := rt.Instance(idleInstance)
		if !inst.Reserve(rt, request) {
			panic("least_loaded: failed to reserve a spot on an available instance")
		}
		return idleInstance, true
	}

	for _, id := range tracker.Instances {
		inst := rt.Instance(id)
		if inst == nil {
			continue
		}
		if inst.Reserve(rt, request) {
			sim.Log.WithClock(rt.Now()).Infof("(loadbalance) dispatched %s", request.ReqID)
			return id, true
		}
	}
	return "", false
}

func sumUtilizations(rt *Runtime, id NodeID) float64 {
	node := rt.Node(id)
	if node == nil {
		return 0
	}
	cpu, mem := node.GetUtilizations(rt)
	return cpu + mem
}

// loadBalancePolicies maps the config-selectable policy name to its
// implementation.
var loadBalancePolicies = map[string]LoadBalancePolicy{
	"first_available": FirstAvailable,
	"least_loaded":    LeastLoaded,
}
