package trace

// Level controls the verbosity of decision tracing.
type Level string

const (
	// LevelNone disables tracing (zero overhead).
	LevelNone Level = "none"
	// LevelDecisions captures all admission and dispatch policy decisions.
	LevelDecisions Level = "decisions"
)

var validLevels = map[Level]bool{
	LevelNone:      true,
	LevelDecisions: true,
	"":             true, // empty defaults to none
}

// IsValidLevel returns true if the given level string is a recognized
// trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Config controls trace collection behavior for a run.
type Config struct {
	Level           Level
	CounterfactualK int // number of counterfactual candidates to keep per dispatch decision; the throttler records none, so Candidates stays nil
}

// Run collects decision records made by the throttler and load balancer
// over the course of a simulation run.
type Run struct {
	Config     Config
	Admissions []AdmissionRecord
	Dispatches []DispatchRecord
}

// NewRun creates a Run ready for recording.
func NewRun(config Config) *Run {
	return &Run{
		Config:     config,
		Admissions: make([]AdmissionRecord, 0),
		Dispatches: make([]DispatchRecord, 0),
	}
}

// RecordAdmission appends an admission decision record. A no-op when
// tracing is disabled is the caller's responsibility (checking
// r.Config.Level != LevelNone), keeping this package allocation-free when
// unused.
func (r *Run) RecordAdmission(record AdmissionRecord) {
	r.Admissions = append(r.Admissions, record)
}

// RecordDispatch appends a load-balancer dispatch decision record.
func (r *Run) RecordDispatch(record DispatchRecord) {
	r.Dispatches = append(r.Dispatches, record)
}
