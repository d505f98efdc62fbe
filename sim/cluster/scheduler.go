package cluster

// Scheduler places scale-up/scale-down decisions from the autoscaler onto
// nodes. It does not pick the "best" node: it walks the node list starting
// from a randomized offset (so load spreads across ticks rather than always
// favoring node 0) and binds/kills round-robin until the requested quantity
// is satisfied or every node has been tried once per unit of work.
type Scheduler struct{}

// NewScheduler creates a Scheduler. Node placement decisions resolve
// rt.Nodes() fresh on every call, so nodes that join or leave (HarvestVM
// death) between schedule calls are picked up automatically.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule asks for a change of num instances of fn across the cluster:
// num > 0 binds num new instances (scale up), num < 0 kills -num idle
// instances (scale down). It returns the remainder that could not be
// placed (positive: still need to create, negative: still need to kill),
// mirroring the reference scheduler's worst-case-bounded round robin.
func (s *Scheduler) Schedule(rt *Runtime, fn string, num int) int {
	nodes := rt.Nodes()
	totalNodes := len(nodes)
	if totalNodes == 0 || num == 0 {
		return num
	}

	i := rt.RNG.ForSubsystem(SubsystemScheduler).Intn(totalNodes)
	worstCase := abs(num) * totalNodes
	attempts := 0

	if num > 0 {
		remaining := num
		for attempts < worstCase {
			node := nodes[i%totalNodes]
			if node.GetNumAvailableSlots() > 0 {
				node.Bind(rt.Now(), fn, 1)
				remaining--
			}
			if remaining == 0 {
				break
			}
			attempts++
			i++
		}
		return remaining
	}

	quantity := -num
	for attempts < worstCase {
		node := nodes[i%totalNodes]
		remainder := node.Kill(rt, fn, 1)
		if remainder == 0 {
			quantity--
		}
		if quantity == 0 {
			break
		}
		attempts++
		i++
	}
	return -quantity
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
