package sim

import "fmt"

// SystemTaxMilli is the minimum per-request completion tax charged against
// the owning node, reflecting bookkeeping overhead not modeled as CPU time.
const SystemTaxMilli = 5

// Request is one invocation of one DAG node: the unit the scheduler places,
// an Instance runs, and the throttler queues. Its lifecycle is Start (first
// dispatch to a runqueue slot) -> zero or more Run calls (CPU ticks,
// possibly interrupted by preemption) -> Stop (either completed or failed).
type Request struct {
	FlowID  int64
	RPS     int
	Dest    string
	Duration int64
	Memory   int
	DagName  string

	ArrivalTime int64
	StartTime   int64
	EndTime     int64
	hasStarted  bool

	// TotalCputime accumulates wall-clock CPU time actually delivered to
	// this request, across however many Run/preempt cycles it takes.
	TotalCputime int64
	LastRunTs    int64
	IsRunning    bool
	Failed       bool
	NumReplicas  int
	ReqID        string
}

// NewRequest builds a Request and derives its ReqID from FlowID and Dest,
// mirroring the Python dataclass's __post_init__.
func NewRequest(flowID int64, rps int, dest string, duration int64, memory int, dagName string) *Request {
	r := &Request{
		FlowID:      flowID,
		RPS:         rps,
		Dest:        dest,
		Duration:    duration,
		Memory:      memory,
		DagName:     dagName,
		NumReplicas: 1,
	}
	r.ReqID = fmt.Sprintf("%d-%s", flowID, dest)
	return r
}

// Start marks the request as running as of now. The first call sets
// StartTime; later calls (resuming after preemption) leave it untouched.
func (r *Request) Start(now int64) {
	if !r.hasStarted {
		r.StartTime = now
		r.hasStarted = true
	}
	r.LastRunTs = now
	r.IsRunning = true
}

// Run advances TotalCputime by the elapsed time since the last Start/Run
// call and returns the remaining duration still owed.
func (r *Request) Run(now int64) int64 {
	if !r.IsRunning {
		panic(fmt.Sprintf("request %s: run called while not running", r.ReqID))
	}
	r.TotalCputime += now - r.LastRunTs
	r.LastRunTs = now
	return r.Duration - r.TotalCputime
}

// Stop ends execution, charging a randomized system tax (scaled by node CPU
// utilization) onto EndTime and marking Failed if the request never
// accumulated its full duration (it was preempted away and never resumed).
// dereference is invoked with the request so the caller's DAG flow tracker
// can release a predecessor slot for this request's successors; Stop itself
// carries no dependency on the DAG package.
func (r *Request) Stop(now int64, nodeCPUUtilization, nodeMemUsage float64, rng interface{ Intn(int) int }, dereference func(*Request)) {
	tax := systemTax(nodeCPUUtilization, rng)
	r.EndTime = now + tax
	if !r.hasStarted || r.TotalCputime < r.Duration {
		r.Failed = true
	}
	if dereference != nil {
		dereference(r)
	}
	r.IsRunning = false
}

// systemTax draws a uniform delay in [SystemTaxMilli, SystemTaxMilli*(100+util)/100],
// matching get_system_tax in the reference implementation: CPU pressure
// slows down the teardown bookkeeping.
func systemTax(nodeCPUUtilization float64, rng interface{ Intn(int) int }) int64 {
	hi := int(float64(SystemTaxMilli) * (100 + nodeCPUUtilization) / 100)
	if hi <= SystemTaxMilli {
		return SystemTaxMilli
	}
	return int64(SystemTaxMilli + rng.Intn(hi-SystemTaxMilli+1))
}

func (r *Request) String() string {
	return "Request: " + r.ReqID
}

// Function is a deployable unit of code: a name, its per-invocation vCPU
// requirement, and the per-instance concurrency target the autoscaler
// sizes its desired scale against (each Instance itself holds one request
// at a time).
type Function struct {
	Name             string
	VCPU             int
	ConcurrencyLimit int
}

func NewFunction(name string, vcpu, concurrencyLimit int) *Function {
	if vcpu <= 0 {
		vcpu = 1
	}
	if concurrencyLimit <= 0 {
		concurrencyLimit = 1
	}
	return &Function{Name: name, VCPU: vcpu, ConcurrencyLimit: concurrencyLimit}
}

func (f *Function) String() string {
	return fmt.Sprintf("Function{Name:%s VCPU:%d ConcurrencyLimit:%d}", f.Name, f.VCPU, f.ConcurrencyLimit)
}
