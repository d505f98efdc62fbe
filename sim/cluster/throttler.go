package cluster

import (
	"fmt"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/trace"
)

// Throttler is the ingress admission point for every request: it holds one
// Tracker per function plus a single central overflow queue (capacity
// 10,000) absorbing whatever a tracker's own queue (also 10,000) cannot.
type Throttler struct {
	breaker  *sim.Breaker[*sim.Request]
	Trackers map[string]*Tracker

	// Order fixes the iteration order of Trackers for every pass that
	// affects shared node-core admission (Dispatch below; the
	// autoscaler's evaluate and the cluster's placeInstances read this
	// same order). Go map iteration is randomized per process, and two
	// functions can contend for the same node's cores, so dispatching
	// them in a random order per run would silently break
	// run-to-run reproducibility under a fixed seed.
	Order []string
}

// NewThrottler creates a Throttler with one Tracker per function, fixing
// Order to the caller's functions slice order.
func NewThrottler(functions []*sim.Function) *Throttler {
	trackers := make(map[string]*Tracker, len(functions))
	order := make([]string, 0, len(functions))
	for _, fn := range functions {
		trackers[fn.Name] = NewTracker(fn)
		order = append(order, fn.Name)
	}
	return &Throttler{
		breaker:  sim.NewBreaker[*sim.Request]("Throttler", 10_000),
		Trackers: trackers,
		Order:    order,
	}
}

// Handle tries to dispatch request onto one of its destination's
// instances using the configured load balance policy. If rt.Trace is
// recording, the chosen instance (or lack of one) is appended as a
// DispatchRecord.
func (th *Throttler) Handle(rt *Runtime, request *sim.Request) bool {
	tracker, ok := th.Trackers[request.Dest]
	if !ok {
		panic(fmt.Sprintf("throttler: unknown function %s", request.Dest))
	}
	policyName := rt.Config.Policy.LoadBalance
	policy, ok := loadBalancePolicies[policyName]
	if !ok {
		panic(fmt.Sprintf("throttler: unsupported load balance policy %q", policyName))
	}
	instanceID, dispatched := policy(rt, tracker, request)

	if rt.Trace != nil && rt.Trace.Config.Level != trace.LevelNone {
		reason := "no free instance"
		if dispatched {
			reason = "reserved"
		}
		rt.Trace.RecordDispatch(trace.DispatchRecord{
			ReqID:          request.ReqID,
			Clock:          rt.Now(),
			ChosenInstance: string(instanceID),
			Reason:         reason,
		})
	}

	return dispatched
}

// Hit admits request into the throttler: it is queued on its tracker (or,
// if the tracker is full, on the central overflow queue), duplicated for
// re-execution if the policy calls for it, and then an immediate dispatch
// attempt is made so requests that can run right away don't wait for the
// next dispatch tick.
func (th *Throttler) Hit(rt *Runtime, request *sim.Request) {
	tracker := th.Trackers[request.Dest]
	trackerHasCapacity := tracker.breaker.HasSlots()

	reexec := false
	completionRate := rt.FlowCompletionRate(request.FlowID)
	if rt.Config.Policy.DupExecution && completionRate >= rt.Config.Policy.DupExecutionThreshold {
		sim.Log.WithClock(rt.Now()).Infof("(throttler) re-execute %s (completion_rate=%.2f)", request.ReqID, completionRate)
		request.NumReplicas = 2
		reexec = true
	}

	if rt.Trace != nil && rt.Trace.Config.Level != trace.LevelNone {
		reason := "central overflow queue"
		if trackerHasCapacity {
			reason = "tracker queue"
		}
		rt.Trace.RecordAdmission(trace.AdmissionRecord{
			ReqID:    request.ReqID,
			Clock:    rt.Now(),
			Admitted: true,
			Reason:   reason,
		})
	}

	if trackerHasCapacity {
		tracker.breaker.Enqueue(request)
		if reexec {
			tracker.breaker.Enqueue(cloneRequest(request))
		}
	} else {
		th.breaker.Enqueue(request)
		if reexec {
			th.breaker.Enqueue(cloneRequest(request))
		}
	}

	tracker.IncConcurrency(rt.Now())

	if len(tracker.Instances) == 0 {
		sim.Log.WithClock(rt.Now()).Infof("cold start occurred on %s", request.ReqID)
		rt.Autoscaler.Poke(rt, request)
	}

	dispatched := th.Handle(rt, request)
	if dispatched {
		sim.Log.WithClock(rt.Now()).Infof("(throttler) dispatched %s", request.ReqID)
		tracker.DecConcurrency(rt.Now())
		if trackerHasCapacity {
			tracker.breaker.Dequeue(request)
		} else {
			th.breaker.Dequeue(request)
		}
	} else {
		sim.Log.WithClock(rt.Now()).Infof("(throttler) no compute slots to dispatch; %s queued", request.ReqID)
	}
}

// cloneRequest makes a shallow copy of request for re-execution, mirroring
// dataclasses.replace in the reference implementation: a distinct request
// object tracking its own lifecycle, sharing only the immutable fields.
func cloneRequest(request *sim.Request) *sim.Request {
	clone := *request
	return &clone
}

// Dispatch retries queued requests in tracker order, each tracker's queue
// front to back, moving on to the next tracker at the first request that
// cannot be handled (the requests behind it are not tried this tick). The
// central overflow queue must be empty by the time Dispatch runs — if it
// isn't, tracker capacity is being exhausted faster than Dispatch can
// drain it, which is an invariant violation worth surfacing loudly.
func (th *Throttler) Dispatch(rt *Runtime) {
	if !th.breaker.Empty() {
		sim.Log.Fatalf(rt.Now(), "throttler: requests overflowed to the central queue")
	}

	for _, fn := range th.Order {
		tracker := th.Trackers[fn]
		for _, request := range tracker.breaker.Snapshot() {
			if th.Handle(rt, request) {
				tracker.breaker.Dequeue(request)
			} else {
				break
			}
		}
	}
}

// RecordConcurrencies snapshots each tracker's queue depth (including its
// share of the central overflow queue) as a new concurrency sample, for
// the autoscaler's panic/stable windows to read.
func (th *Throttler) RecordConcurrencies() {
	for _, tracker := range th.Trackers {
		tracker.UpdateConcurrency(th.countOverflowFor(tracker))
	}
}

func (th *Throttler) countOverflowFor(tracker *Tracker) int {
	n := 0
	for _, r := range th.breaker.Snapshot() {
		if r.Dest == tracker.Function.Name {
			n++
		}
	}
	return n
}
