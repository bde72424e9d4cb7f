package mruntime

import "context"

// ErrorReporter forwards recovered panics to an external error-tracking
// service. Optional: nil (the default) disables reporting entirely.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, tags map[string]string)
}

var errorReporter ErrorReporter

// SetErrorReporter wires an external error reporter. Passing nil disables
// reporting.
func SetErrorReporter(reporter ErrorReporter) {
	errorReporter = reporter
}
