package trace

// Summary aggregates statistics from a Run.
type Summary struct {
	TotalDecisions     int
	AdmittedCount      int
	RejectedCount      int
	MeanRegret         float64
	MaxRegret          float64
	UniqueTargets      int
	TargetDistribution map[string]int // instance ID -> count of requests dispatched there
}

// Summarize computes aggregate statistics from a Run. Safe to call with
// nil or empty runs (returns zero-value fields).
func Summarize(r *Run) *Summary {
	summary := &Summary{
		TargetDistribution: make(map[string]int),
	}
	if r == nil {
		return summary
	}

	summary.TotalDecisions = len(r.Admissions)
	for _, a := range r.Admissions {
		if a.Admitted {
			summary.AdmittedCount++
		} else {
			summary.RejectedCount++
		}
	}

	if len(r.Dispatches) > 0 {
		totalRegret := 0.0
		for _, d := range r.Dispatches {
			summary.TargetDistribution[d.ChosenInstance]++
			totalRegret += d.Regret
			if d.Regret > summary.MaxRegret {
				summary.MaxRegret = d.Regret
			}
		}
		summary.MeanRegret = totalRegret / float64(len(r.Dispatches))
	}

	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
