package mruntime

// maxLabelLength bounds component labels attached to panic metrics and log
// fields, matching common metrics-backend label length limits.
const maxLabelLength = 63

func sanitizeLabel(s string) string {
	if len(s) <= maxLabelLength {
		return s
	}
	return s[:maxLabelLength]
}

// MetricsRecorder is the narrow surface mruntime needs from whatever
// metrics backend the host process wires in. No package in this
// repository implements it or calls InitPanicMetrics with a recorder, so
// panic metrics stay off in the shipped binaries.
type MetricsRecorder interface {
	IncPanic(component string)
}

// PanicMetrics wraps a MetricsRecorder once InitPanicMetrics has been
// called with a non-nil recorder.
type PanicMetrics struct {
	recorder MetricsRecorder
}

var panicMetrics *PanicMetrics

// InitPanicMetrics wires a metrics recorder for recovered panics. Passing
// nil clears any previously configured recorder; both are safe to call
// before a recorder exists, since every call site goes through
// GetPanicMetrics and checks for nil.
func InitPanicMetrics(recorder MetricsRecorder) {
	if recorder == nil {
		panicMetrics = nil
		return
	}
	panicMetrics = &PanicMetrics{recorder: recorder}
}

// GetPanicMetrics returns the configured panic metrics, or nil if none has
// been initialized.
func GetPanicMetrics() *PanicMetrics {
	return panicMetrics
}
