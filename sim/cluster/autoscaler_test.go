package cluster

import (
	"testing"

	"github.com/faas-sim/faas-sim/sim"
)

func newTestAutoscalerRuntime(t *testing.T, concurrencyLimit int, panicWindowSec, stableWindowSec int64) (*Runtime, *sim.Function) {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Autoscaler.AlwaysPanic = false
	cfg.Autoscaler.PanicWindowSec = panicWindowSec
	cfg.Autoscaler.StableWindowSec = stableWindowSec
	fn := sim.NewFunction("fn-a", 1, concurrencyLimit)
	rt := NewRuntime(cfg, 1)
	rt.AddFunction(fn)
	rt.Throttler = NewThrottler([]*sim.Function{fn})
	rt.Autoscaler = NewAutoscaler([]*sim.Function{fn})
	rt.Scheduler = NewScheduler()
	return rt, fn
}

// spec.md §8 boundary behavior: with empty traffic for longer than
// STABLE_WINDOW_SEC, desired_scale settles to 0.
func TestAutoscaler_Evaluate_ScalesToZeroWithEmptyTraffic(t *testing.T) {
	rt, _ := newTestAutoscalerRuntime(t, 10, 2, 5)
	tracker := rt.Throttler.Trackers["fn-a"]
	tracker.Concurrencies = make([]int, 6)

	rt.Autoscaler.Evaluate(rt)

	scaler := rt.Autoscaler.Scalers["fn-a"]
	if scaler.DesiredScale != 0 {
		t.Errorf("DesiredScale with empty traffic beyond the stable window = %d, want 0", scaler.DesiredScale)
	}
}

// spec.md §8 boundary behavior: any traffic at all within the window keeps
// desired_scale at least 1.
func TestAutoscaler_Evaluate_AnyTrafficKeepsAtLeastOneInstance(t *testing.T) {
	rt, _ := newTestAutoscalerRuntime(t, 10, 2, 5)
	tracker := rt.Throttler.Trackers["fn-a"]
	tracker.Concurrencies = []int{0, 0, 0, 0, 0, 1}

	rt.Autoscaler.Evaluate(rt)

	scaler := rt.Autoscaler.Scalers["fn-a"]
	if scaler.DesiredScale < 1 {
		t.Errorf("DesiredScale with nonzero traffic in the window = %d, want >= 1", scaler.DesiredScale)
	}
}

// spec.md §8 concrete scenario: a sudden burst pushes observed concurrency
// far over the panic threshold, switching the scaler into panic mode and
// scaling up immediately rather than waiting for the slower stable window.
func TestAutoscaler_Evaluate_BurstTriggersPanicMode(t *testing.T) {
	rt, _ := newTestAutoscalerRuntime(t, 10, 2, 5)
	tracker := rt.Throttler.Trackers["fn-a"]
	tracker.Concurrencies = []int{0, 0, 0, 0, 0, 25}

	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", NodeID("node"), 0, 1)
	inst.Status = InstanceRunning
	rt.AddInstance(inst)
	tracker.Instances = append(tracker.Instances, inst.ID)

	rt.Autoscaler.Evaluate(rt)

	scaler := rt.Autoscaler.Scalers["fn-a"]
	if scaler.Mode != ModePanic {
		t.Errorf("Mode = %v, want panic once observed concurrency far exceeds the panic threshold", scaler.Mode)
	}
	if scaler.DesiredScale < 2 {
		t.Errorf("DesiredScale during the burst = %d, want >= 2", scaler.DesiredScale)
	}
}

func TestAutoscaler_Evaluate_SteadyLowLoadStaysInStableMode(t *testing.T) {
	rt, _ := newTestAutoscalerRuntime(t, 10, 2, 5)
	tracker := rt.Throttler.Trackers["fn-a"]
	tracker.Concurrencies = []int{1, 1, 1, 1, 1, 1}

	inst := NewInstance(InstanceID("fn-a-1"), "fn-a", NodeID("node"), 0, 1)
	inst.Status = InstanceRunning
	rt.AddInstance(inst)
	tracker.Instances = append(tracker.Instances, inst.ID)

	rt.Autoscaler.Evaluate(rt)

	scaler := rt.Autoscaler.Scalers["fn-a"]
	if scaler.Mode != ModeStable {
		t.Errorf("Mode = %v, want stable under steady low load well below the panic threshold", scaler.Mode)
	}
}

func TestAutoscaler_Evaluate_OrderMatchesConstructionForDeterminism(t *testing.T) {
	cfg := sim.DefaultConfig()
	functions := []*sim.Function{
		sim.NewFunction("fn-c", 1, 10),
		sim.NewFunction("fn-a", 1, 10),
		sim.NewFunction("fn-b", 1, 10),
	}
	a := NewAutoscaler(functions)
	for i, fn := range functions {
		if a.Order[i] != fn.Name {
			t.Errorf("Order[%d] = %q, want %q", i, a.Order[i], fn.Name)
		}
	}
	_ = cfg
}
