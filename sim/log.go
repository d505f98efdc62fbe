package sim

import "github.com/sirupsen/logrus"

// Log is the package-level logger, configured once by cmd/root.go and used
// throughout sim/cluster. It is a thin wrapper over logrus rather than a
// bare *logrus.Logger so every call site is forced to attach the virtual
// clock reading that produced it, the way the reference simulator's log
// lines are always timestamped with sim time rather than wall time.
type Logger struct {
	entry *logrus.Logger
}

// Log is the shared logger instance. cmd/root.go configures its level and
// output; everything else only calls WithClock.
var Log = &Logger{entry: logrus.StandardLogger()}

// WithClock returns a *logrus.Entry carrying the given virtual-clock
// reading as a structured field, so every log line can be correlated to the
// tick that produced it regardless of wall-clock time.
func (l *Logger) WithClock(nowMilli int64) *logrus.Entry {
	return l.entry.WithField("clock_ms", nowMilli)
}

// Fatalf logs at fatal level and terminates the process, matching the
// reference simulator's sim.log.fatal calls for invariant violations
// (breaker overflow, double-bind, scheduling a request with no capacity).
func (l *Logger) Fatalf(nowMilli int64, format string, args ...interface{}) {
	l.WithClock(nowMilli).Fatalf(format, args...)
}

// SetLevel configures the underlying logrus level.
func (l *Logger) SetLevel(level logrus.Level) {
	l.entry.SetLevel(level)
}
