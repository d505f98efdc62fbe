package cluster

import "math"

// SurvivalPredictor estimates a HarvestVM's probability of surviving past
// its current age. The reference implementation loads a pickled
// Kaplan-Meier model fitted to a trace; that artifact has no Go analog, so
// this is an injectable interface with two built-in implementations.
type SurvivalPredictor interface {
	Survive(ageMilli int64) float64
}

// ConstantSurvival always returns the same survival probability,
// independent of age — the simplest possible predictor, useful for tests.
type ConstantSurvival struct {
	Probability float64
}

func (c ConstantSurvival) Survive(int64) float64 { return c.Probability }

// ExponentialHazardSurvival models survival with a constant hazard rate
// (in events per millisecond), giving survival probability exp(-hazard *
// age) — the parametric (non-empirical) proxy for the trace-fitted model
// the reference implementation loads from disk.
type ExponentialHazardSurvival struct {
	HazardPerMilli float64
}

func (e ExponentialHazardSurvival) Survive(ageMilli int64) float64 {
	return math.Exp(-e.HazardPerMilli * float64(ageMilli))
}

// CoresScheduleProvider returns the sequence of available core counts a
// HarvestVM cycles through over its lifetime, keyed by a hash identifying
// a specific historical trace. The reference implementation loads this
// from a pickled cores_table keyed by VM hash; this is the Go analog as an
// injectable interface.
type CoresScheduleProvider interface {
	// Schedule returns the per-second core-count sequence for hash, and
	// whether hash was recognized.
	Schedule(hash string) ([]int, bool)
	// Hashes returns every hash this provider knows about.
	Hashes() []string
}

// StaticCoresTable is a CoresScheduleProvider backed by an in-memory table,
// the direct analog of the reference implementation's pickled cores_table.
type StaticCoresTable struct {
	table map[string][]int
	order []string
}

// NewStaticCoresTable builds a StaticCoresTable from a hash->schedule map,
// preserving hashes in the order given for deterministic random choice.
func NewStaticCoresTable(entries map[string][]int, order []string) *StaticCoresTable {
	return &StaticCoresTable{table: entries, order: order}
}

func (s *StaticCoresTable) Schedule(hash string) ([]int, bool) {
	sched, ok := s.table[hash]
	return sched, ok
}

func (s *StaticCoresTable) Hashes() []string {
	return s.order
}

// DefaultCoresTable builds a StaticCoresTable covering the built-in HVM
// hash allow-list, with a simple synthetic oscillating core-count schedule
// per hash (the reference trace data is not available outside the
// original deployment).
func DefaultCoresTable(hashes []string) *StaticCoresTable {
	table := make(map[string][]int, len(hashes))
	for i, hash := range hashes {
		table[hash] = syntheticCoresSchedule(i)
	}
	return NewStaticCoresTable(table, hashes)
}

// syntheticCoresSchedule produces a deterministic, mildly-varying
// second-by-second core count sequence seeded only by the hash's position
// in the allow-list, so different HVM hashes behave differently without
// depending on randomness at table-construction time.
func syntheticCoresSchedule(seed int) []int {
	base := 2 + seed%4
	sched := make([]int, 3600)
	for t := range sched {
		wobble := (t / 300) % 3
		sched[t] = base + wobble
	}
	return sched
}
