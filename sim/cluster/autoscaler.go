package cluster

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/faas-sim/faas-sim/sim"
)

// ScalerMode is the Knative Pod Autoscaler's two operating modes: panic
// (fast reaction, short window) and stable (slow reaction, long window).
type ScalerMode string

const (
	ModePanic  ScalerMode = "panic"
	ModeStable ScalerMode = "stable"
)

// Scaler holds one function's autoscaling state.
type Scaler struct {
	Func         string
	DesiredScale int
	ActualScale  int
	Mode         ScalerMode
}

// Autoscaler evaluates every function's desired scale from its tracker's
// concurrency history, using Knative's panic/stable two-window algorithm:
// a short panic window reacts fast to bursts, a long stable window governs
// steady-state sizing, and the panic window wins whenever it says the
// function is over threshold.
type Autoscaler struct {
	Scalers map[string]*Scaler

	// Order fixes the iteration order of Scalers for evaluate's pass
	// over every tracked function, for the same reproducibility reason
	// as Throttler.Order: functions visited in map-iteration order would
	// update scaler state non-deterministically across runs.
	Order []string
}

// NewAutoscaler creates an Autoscaler with one Scaler per function, fixing
// Order to the caller's functions slice order.
func NewAutoscaler(functions []*sim.Function) *Autoscaler {
	scalers := make(map[string]*Scaler, len(functions))
	order := make([]string, 0, len(functions))
	for _, fn := range functions {
		scalers[fn.Name] = &Scaler{Func: fn.Name, Mode: ModePanic}
		order = append(order, fn.Name)
	}
	return &Autoscaler{Scalers: scalers, Order: order}
}

// Poke immediately evaluates the autoscaler for request's destination
// function, used by the throttler on a cold start so a new function
// doesn't wait for the next scheduled evaluation tick.
func (a *Autoscaler) Poke(rt *Runtime, request *sim.Request) {
	a.evaluate(rt, request)
}

// Evaluate runs a full autoscaling pass over every tracked function.
func (a *Autoscaler) Evaluate(rt *Runtime) {
	a.evaluate(rt, nil)
}

func (a *Autoscaler) evaluate(rt *Runtime, request *sim.Request) {
	cfg := rt.Config.Autoscaler
	for _, fn := range a.Order {
		if request != nil && request.Dest != fn {
			continue
		}
		tracker := rt.Throttler.Trackers[fn]

		concurrencies := tracker.Concurrencies
		actualScale := tracker.GetScale(rt)
		readyPod := actualScale
		if readyPod == 0 {
			readyPod = 1
		}
		ccTarget := float64(tracker.Function.ConcurrencyLimit)

		maxUpScale := int(math.Ceil(cfg.MaxScaleUpRate * float64(readyPod)))
		maxDownScale := int(math.Floor(float64(readyPod) / cfg.MaxScaleDownRate))

		panicCC := observedCC(concurrencies, int(cfg.PanicWindowSec))
		stableCC := observedCC(concurrencies, int(cfg.StableWindowSec))

		isOverPanicThreshold := panicCC/float64(readyPod) >= cfg.PanicThresholdPct/100
		if cfg.AlwaysPanic || (panicCC > 0 && actualScale == 0) {
			isOverPanicThreshold = true
		}

		scaler := a.Scalers[fn]
		var desiredScale int
		var nRequestsInWindow int
		if isOverPanicThreshold || int64(len(concurrencies)) < cfg.StableWindowSec {
			scaler.Mode = ModePanic
			desiredScale = int(math.Ceil(panicCC / ccTarget))
			nRequestsInWindow = sumTail(concurrencies, int(cfg.PanicWindowSec))
		} else {
			scaler.Mode = ModeStable
			desiredScale = int(math.Ceil(stableCC / ccTarget))
			nRequestsInWindow = sumTail(concurrencies, int(cfg.StableWindowSec))
		}

		if desiredScale < maxDownScale {
			desiredScale = maxDownScale
		}
		if desiredScale > maxUpScale {
			desiredScale = maxUpScale
		}

		if desiredScale == 0 {
			if nRequestsInWindow > 0 {
				desiredScale = 1
			} else {
				desiredScale = 0
			}
		}

		oldScale := scaler.DesiredScale
		scaler.DesiredScale = desiredScale
		scaler.ActualScale = actualScale

		if oldScale != desiredScale {
			if oldScale == 0 {
				sim.Log.WithClock(rt.Now()).Infof("(autoscaler) cold start upon %s", fn)
			}
			sim.Log.WithClock(rt.Now()).Infof("(autoscaler) desired scale %s: %d -> %d", fn, oldScale, desiredScale)
		}
	}
}

// observedCC computes the mean concurrency over the trailing window
// samples (or fewer, if the history is shorter), using gonum's sliding
// window mean instead of a hand-rolled sum/len.
func observedCC(concurrencies []int, window int) float64 {
	if window > len(concurrencies) {
		window = len(concurrencies)
	}
	if window <= 0 {
		return 0
	}
	tail := concurrencies[len(concurrencies)-window:]
	floats := make([]float64, len(tail))
	for i, c := range tail {
		floats[i] = float64(c)
	}
	return stat.Mean(floats, nil)
}

func sumTail(concurrencies []int, window int) int {
	if window > len(concurrencies) {
		window = len(concurrencies)
	}
	if window <= 0 {
		return 0
	}
	sum := 0
	for _, c := range concurrencies[len(concurrencies)-window:] {
		sum += c
	}
	return sum
}
