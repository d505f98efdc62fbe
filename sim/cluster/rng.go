package cluster

import (
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG hands out one independently-seeded *rand.Rand per named
// subsystem, all deterministically derived from a single master seed. It
// supplies the control plane's randomness (scheduler tie-breaks, harvest
// victim choice, system-tax jitter, HVM survival draws); arrival times come
// from the workload.Generator's own *rand.Rand instead. Every subsystem gets
// its own stream so that draws in one do not shift another's sequence.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG seeded from masterSeed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the named subsystem, creating it lazily.
// Repeated calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// ForNode returns the RNG for a specific node (used by a HarvestVM's
// harvest victim choice so that one node's draws don't consume another's
// stream).
func (p *PartitionedRNG) ForNode(id NodeID) *rand.Rand {
	return p.ForSubsystem("node_" + string(id))
}

// deriveSeed derives a subsystem seed as masterSeed XOR fnv64a(name), which
// is order-independent: the set of subsystems touched so far has no effect
// on any individual subsystem's stream.
func (p *PartitionedRNG) deriveSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return p.masterSeed ^ int64(h.Sum64())
}

// Named subsystem streams shared across the control plane.
const (
	SubsystemArrivals   = "arrivals"
	SubsystemScheduler  = "scheduler"
	SubsystemPreemption = "preemption"
	SubsystemSystemTax  = "system_tax"
	SubsystemSurvival   = "survival"
)
