package cluster

import "github.com/faas-sim/faas-sim/sim"

// Tracker is the throttler's per-function bookkeeping: its own bounded
// queue, the set of instances currently serving it, and a concurrency
// history the autoscaler samples from.
type Tracker struct {
	Function      *sim.Function
	breaker       *sim.Breaker[*sim.Request]
	Instances     []InstanceID
	Concurrencies []int
}

// NewTracker creates an empty Tracker for fn with a 10,000-capacity queue.
func NewTracker(fn *sim.Function) *Tracker {
	return &Tracker{
		Function:      fn,
		breaker:       sim.NewBreaker[*sim.Request]("_Tracker_::"+fn.Name, 10_000),
		Concurrencies: []int{0},
	}
}

// GetScale returns the number of instances that are RUNNING or IDLE —
// Knative's "actual scale".
func (t *Tracker) GetScale(rt *Runtime) int {
	running := 0
	for _, id := range t.Instances {
		inst := rt.Instance(id)
		if inst != nil && (inst.Status == InstanceRunning || inst.Status == InstanceIdle) {
			running++
		}
	}
	return running
}

// UpdateConcurrency appends a new concurrency sample, combining the
// tracker's own queue depth with any requests that overflowed to the
// throttler's central queue.
func (t *Tracker) UpdateConcurrency(overflowed int) {
	t.Concurrencies = append(t.Concurrencies, t.breaker.Len()+overflowed)
}

// IncConcurrency bumps the most recent concurrency sample by one, recording
// an admission that hasn't yet been reflected in a fresh sample.
func (t *Tracker) IncConcurrency(now int64) {
	t.Concurrencies[len(t.Concurrencies)-1]++
	sim.Log.WithClock(now).Infof("(throttler) concurrency inc to %d", t.Concurrencies[len(t.Concurrencies)-1])
}

// DecConcurrency mirrors IncConcurrency for a dispatch.
func (t *Tracker) DecConcurrency(now int64) {
	t.Concurrencies[len(t.Concurrencies)-1]--
	sim.Log.WithClock(now).Infof("(throttler) concurrency dec to %d", t.Concurrencies[len(t.Concurrencies)-1])
}
