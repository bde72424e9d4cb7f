package mruntime

// fieldsLogger is satisfied by any logger whose WithFields returns its
// own concrete interface type (mlog.Logger is the one real instance),
// letting Adapt bridge such a logger into this package's Logger without
// mruntime importing mlog and without every caller hand-writing a shim.
type fieldsLogger[T any] interface {
	Errorf(format string, args ...any)
	WithFields(fields ...any) T
}

type loggerAdapter[T fieldsLogger[T]] struct {
	inner T
}

// Adapt wraps l (e.g. an mlog.Logger) as a Logger, so callers across the
// repository can pass their injected mlog.Logger straight into SafeGo,
// RecoverAndLog, and friends.
func Adapt[T fieldsLogger[T]](l T) Logger {
	return loggerAdapter[T]{inner: l}
}

func (a loggerAdapter[T]) Errorf(format string, args ...any) {
	a.inner.Errorf(format, args...)
}

func (a loggerAdapter[T]) WithFields(fields ...any) Logger {
	return loggerAdapter[T]{inner: a.inner.WithFields(fields...)}
}
