package cluster

import (
	"fmt"

	"github.com/faas-sim/faas-sim/sim"
)

// InstanceStatus is the state machine every Instance moves through: a new
// instance starts IDLE, is RUNNING while it hosts a job, is UNKNOWN after a
// job stops until the discovery delay has passed (then IDLE again), and is
// TERMINATING once the reconcile loop has scheduled it for removal.
type InstanceStatus int

const (
	InstanceUnknown InstanceStatus = iota
	InstanceIdle
	InstanceHalted
	InstanceRunning
	InstanceTerminating
)

func (s InstanceStatus) String() string {
	switch s {
	case InstanceIdle:
		return "IDLE"
	case InstanceHalted:
		return "HALTED"
	case InstanceRunning:
		return "RUNNING"
	case InstanceTerminating:
		return "TERMINATING"
	default:
		return "UNKNOWN"
	}
}

// Instance is one running (or about-to-run) copy of a Function, bound to a
// single Node. It owns a capacity-1 Breaker used as its reservation slot:
// it holds the hosted job and nothing else, so a second reservation fails
// until that job stops.
type Instance struct {
	ID   InstanceID
	Func string
	Node NodeID
	VCPU int

	Deadline      int64
	HasDeadline   bool
	HostedJob     *sim.Request
	StartTime     int64
	Status        InstanceStatus
	DiscoveryCkp  int64
	breaker       *sim.Breaker[*sim.Request]
}

// NewInstance creates an Instance bound to node, starting at startTime,
// with an empty capacity-1 reservation slot.
func NewInstance(id InstanceID, fn string, node NodeID, startTime int64, vcpu int) *Instance {
	return &Instance{
		ID:           id,
		Func:         fn,
		Node:         node,
		VCPU:         vcpu,
		StartTime:    startTime,
		Status:       InstanceIdle,
		DiscoveryCkp: startTime,
		breaker:      sim.NewBreaker[*sim.Request](fmt.Sprintf("Instance %s", fn), 1),
	}
}

func (i *Instance) String() string {
	return "Instance-" + i.Func
}

// Reserve books a slot on this instance for request, if one is free.
// Mirrors instance.py's reserve: fails while TERMINATING, succeeds and
// immediately starts serving when IDLE, succeeds without serving (the
// already-hosted job keeps running) when RUNNING and a slot remains.
func (i *Instance) Reserve(rt *Runtime, request *sim.Request) bool {
	if request.Dest != i.Func {
		panic(fmt.Sprintf("instance %s: destination mismatch for request %s", i.Func, request.ReqID))
	}
	switch i.Status {
	case InstanceTerminating:
		return false
	case InstanceIdle:
		if !i.breaker.HasSlots() {
			return false
		}
		i.breaker.Enqueue(request)
		i.Serve(rt, request)
		return true
	case InstanceRunning:
		if !i.breaker.HasSlots() {
			return false
		}
		i.breaker.Enqueue(request)
		return true
	default:
		return false
	}
}

// Serve books CPU cores on the owning node for request and, if that
// succeeds, starts the request's clock. The instance is considered RUNNING
// the moment it hosts a job regardless of whether cores were actually
// booked this tick.
func (i *Instance) Serve(rt *Runtime, request *sim.Request) {
	i.HostedJob = request
	i.Status = InstanceRunning
	node := rt.Node(i.Node)
	successful := node.BookCores(i.ID, i.VCPU)
	if successful && !request.IsRunning {
		request.Start(rt.Now())
		sim.Log.WithClock(rt.Now()).Infof("(instance) serving %s on %s", request.ReqID, node.Name)
	}
}

// Run advances the hosted job by one tick, or — if nothing is hosted —
// advances the instance's own IDLE/UNKNOWN bookkeeping.
func (i *Instance) Run(rt *Runtime) {
	if i.HostedJob != nil {
		if i.Status != InstanceRunning {
			panic(fmt.Sprintf("instance %s hosting a job while %s", i.Func, i.Status))
		}
		request := i.HostedJob
		if !request.IsRunning {
			i.Serve(rt, request)
			return
		}
		residual := request.Run(rt.Now())
		if residual <= 0 {
			i.Stop(rt, false)
		}
		return
	}

	switch i.Status {
	case InstanceUnknown:
		if rt.Now()-i.DiscoveryCkp > rt.Config.Cluster.DiscoveryDelayMilli {
			i.Status = InstanceIdle
		}
	case InstanceIdle:
		if next, ok := i.breaker.First(); ok {
			i.Serve(rt, next)
		}
	}
}

// Stop ends the hosted job (and, if preempted, every other request still
// queued behind it), charging each a system tax and releasing the node's
// cores. When preempted is false only the head of the queue (the hosted
// job) is stopped; when true every queued request is drained, matching a
// hard node-level preemption.
func (i *Instance) Stop(rt *Runtime, preempted bool) {
	node := rt.Node(i.Node)
	node.YieldCores(i.ID)

	for idx, request := range i.breaker.Snapshot() {
		if idx == 0 && !preempted && request != i.HostedJob {
			panic(fmt.Sprintf("instance %s: head of queue %s is not hosted job %s", i.Func, request.ReqID, i.HostedJob.ReqID))
		}
		cpuUtil, memUsage := node.GetUtilizations(rt)
		request.Stop(rt.Now(), cpuUtil, memUsage, rt.RNG.ForSubsystem(SubsystemSystemTax), rt.Dereference)
		i.breaker.Dequeue(request)
		rt.Drain(node, request)

		if !request.Failed {
			sim.Log.WithClock(rt.Now()).Infof("(instance) finished %s", request.ReqID)
		} else {
			sim.Log.WithClock(rt.Now()).Infof("(instance) failed %s", request.ReqID)
		}

		if !preempted {
			break
		}
	}

	if next, ok := i.breaker.First(); ok {
		i.HostedJob = next
		i.Status = InstanceRunning
	} else {
		i.HostedJob = nil
		i.Status = InstanceUnknown
		i.DiscoveryCkp = rt.Now()
	}
}

// Halt context-switches the hosted job off the CPU without stopping it:
// used for soft preemption, where the instance is kicked back onto the
// node's runqueue instead of being torn down.
func (i *Instance) Halt(rt *Runtime) {
	if i.Status != InstanceRunning {
		return
	}
	node := rt.Node(i.Node)
	node.YieldCores(i.ID)
	if i.HostedJob != nil {
		i.HostedJob.IsRunning = false
	}
	sim.Log.WithClock(rt.Now()).Infof("(instance) halted %s", i.Func)
}
