package cluster

import (
	"testing"

	"github.com/faas-sim/faas-sim/sim"
)

func newTestRuntimeWithNode(t *testing.T, numCores int) (*Runtime, *Node) {
	t.Helper()
	cfg := sim.DefaultConfig()
	rt := NewRuntime(cfg, 1)
	fn := sim.NewFunction("fn-a", 1, 10)
	rt.AddFunction(fn)
	node := NewNode(NodeID("node"), "node", numCores, 4096, 0, cfg.Node.MaxNumInstances, 0)
	rt.AddNode(node)
	rt.Throttler = NewThrottler([]*sim.Function{fn})
	rt.Autoscaler = NewAutoscaler([]*sim.Function{fn})
	rt.Scheduler = NewScheduler()
	return rt, node
}

func TestInstance_Reserve_IdleStartsServingImmediately(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)
	node.Instances = append(node.Instances, inst.ID)

	req := sim.NewRequest(1, 1, "fn-a", 10, 64, "")
	req.ArrivalTime = rt.Now()

	if !inst.Reserve(rt, req) {
		t.Fatal("Reserve must succeed on an IDLE instance with a free slot")
	}
	if inst.Status != InstanceRunning {
		t.Errorf("Status = %v, want RUNNING once a job is hosted", inst.Status)
	}
	if inst.HostedJob != req {
		t.Error("HostedJob must be the reserved request")
	}
	if !req.IsRunning {
		t.Error("Reserve on an IDLE instance must start the request's clock immediately")
	}
}

func TestInstance_Reserve_TerminatingAlwaysFails(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	inst.Status = InstanceTerminating
	rt.AddInstance(inst)

	req := sim.NewRequest(1, 1, "fn-a", 10, 64, "")
	if inst.Reserve(rt, req) {
		t.Error("Reserve must fail on a TERMINATING instance")
	}
}

// spec.md §4.2: an Instance's breaker has capacity 1 (breaker.size <= 1),
// so a RUNNING instance — already holding its one hosted job — can never
// admit a second request; it must wait until the first finishes.
func TestInstance_Reserve_RunningInstanceRejectsSecondRequest(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)
	node.Instances = append(node.Instances, inst.ID)

	first := sim.NewRequest(1, 1, "fn-a", 10, 64, "")
	if !inst.Reserve(rt, first) {
		t.Fatal("first Reserve must succeed")
	}

	second := sim.NewRequest(2, 1, "fn-a", 10, 64, "")
	if inst.Reserve(rt, second) {
		t.Error("a RUNNING instance must reject a second request once its capacity-1 breaker is full")
	}
	if inst.HostedJob != first {
		t.Error("a rejected second request must not disturb the already-hosted job")
	}
}

func TestInstance_Reserve_DestinationMismatchPanics(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)

	defer func() {
		if recover() == nil {
			t.Fatal("Reserve must panic when request.Dest does not match the instance's function")
		}
	}()
	req := sim.NewRequest(1, 1, "fn-b", 10, 64, "")
	inst.Reserve(rt, req)
}

// Round-trip invariant (spec.md §8): reserve then stop on an IDLE instance
// returns it to UNKNOWN/IDLE with hosted_job=nil and leaves the node's CPU
// registry unchanged from its pre-reserve state.
func TestInstance_ReserveThenStop_RestoresCPURegistry(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)
	node.Instances = append(node.Instances, inst.ID)

	before := append([]InstanceID(nil), node.cpuRegistry...)

	req := sim.NewRequest(1, 1, "fn-a", 0, 64, "")
	req.ArrivalTime = rt.Now()
	if !inst.Reserve(rt, req) {
		t.Fatal("Reserve must succeed")
	}

	inst.Stop(rt, false)

	if inst.Status != InstanceUnknown {
		t.Errorf("Status after Stop on an empty queue = %v, want UNKNOWN", inst.Status)
	}
	if inst.HostedJob != nil {
		t.Error("HostedJob must be nil after Stop drains the queue")
	}
	for core, id := range node.cpuRegistry {
		if id != "" {
			t.Errorf("core %d still held by %s after Stop released it", core, id)
		}
	}
	if len(node.cpuRegistry) != len(before) {
		t.Errorf("cpuRegistry length changed: got %d, want %d", len(node.cpuRegistry), len(before))
	}
}

// duration=0: a request completes on the same tick it starts, after one
// Serve+Run pair (spec.md §8 boundary behavior).
func TestInstance_ZeroDurationRequest_CompletesOnFirstRun(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)
	node.Instances = append(node.Instances, inst.ID)

	req := sim.NewRequest(1, 1, "fn-a", 0, 64, "")
	req.ArrivalTime = rt.Now()
	if !inst.Reserve(rt, req) {
		t.Fatal("Reserve must succeed")
	}

	inst.Run(rt)

	if req.EndTime == 0 && !req.Failed {
		t.Error("a zero-duration request must finish (EndTime set) after a single Run call")
	}
	if inst.HostedJob != nil {
		t.Error("instance must no longer host the job once a zero-duration request finishes")
	}
}

func TestInstance_Halt_YieldsCoresWithoutStopping(t *testing.T) {
	rt, node := newTestRuntimeWithNode(t, 2)
	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", node.ID, 0, 1)
	rt.AddInstance(inst)
	node.Instances = append(node.Instances, inst.ID)

	req := sim.NewRequest(1, 1, "fn-a", 100, 64, "")
	req.ArrivalTime = rt.Now()
	inst.Reserve(rt, req)

	inst.Halt(rt)

	if inst.HostedJob == nil {
		t.Error("Halt must not clear HostedJob — it is a context switch, not a stop")
	}
	if req.IsRunning {
		t.Error("Halt must stop the request's clock")
	}
	for _, id := range node.cpuRegistry {
		if id == inst.ID {
			t.Error("Halt must yield the instance's cores back to the node")
		}
	}
}
