// Package trace records throttler admission decisions and load-balancer
// dispatch decisions during a cluster run, for post-hoc policy analysis.
// It has no dependency on sim/ or sim/cluster — it stores plain data.
package trace

// AdmissionRecord captures a single throttler admission decision: whether a
// request was accepted (Reason names the tracker queue or the central
// overflow queue it went to) or rejected because every breaker on the path
// (per-instance, per-tracker, central overflow) was full.
type AdmissionRecord struct {
	ReqID    string
	Clock    int64
	Admitted bool
	Reason   string
}

// CandidateScore captures one instance considered by the load balancer for
// a dispatch decision, alongside the state that produced its score.
type CandidateScore struct {
	InstanceID    string
	Score         float64
	QueueDepth    int
	CoresFree     int
	MemUsageRatio float64
}

// DispatchRecord captures a single load-balancer placement decision, with
// optional counterfactual candidates for regret analysis.
type DispatchRecord struct {
	ReqID          string
	Clock          int64
	ChosenInstance string
	Reason         string
	Scores         map[string]float64 // instance id -> score, nil if policy is scoreless
	Candidates     []CandidateScore    // candidates considered, sorted best-first; nil if k=0
	Regret         float64             // best candidate score - chosen score; 0 if chosen is best
}
