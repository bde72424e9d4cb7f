// Package mlog defines the logging interface every subsystem in this
// repository takes by constructor injection — the supervisor, command
// buffer, tenant client, and envelope dispatcher never import zap or the
// standard log package directly, only mlog.Logger. pkg/mzap supplies the
// production implementation; GoLogger here is a dependency-free fallback
// used by tests.
package mlog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface for log implementations.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Fatalln(args ...any)

	// WithFields returns a Logger that tags every subsequent line with the
	// given key/value pairs, e.g. WithFields("tenant_id", id, "component", "supervisor").
	WithFields(fields ...any) Logger

	Sync() error
}

// LogLevel represents the severity threshold of a Logger.
type LogLevel int8

const (
	PanicLevel LogLevel = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// ParseLevel takes a string level and returns a LogLevel constant.
func ParseLevel(lvl string) (LogLevel, error) {
	switch strings.ToLower(lvl) {
	case "panic":
		return PanicLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	var l LogLevel

	return l, fmt.Errorf("not a valid LogLevel: %q", lvl)
}

// GoLogger is a standard-library-backed Logger, used where pulling in zap
// isn't warranted (unit tests). Its WithFields keeps only the fields of
// the latest call on the returned logger, and GoLogger never prints
// them: output lines carry no key/value tags.
type GoLogger struct {
	fields []any
	Level  LogLevel
}

func (l *GoLogger) IsLevelEnabled(level LogLevel) bool {
	return l.Level >= level
}

func (l *GoLogger) Info(args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Infof(format string, args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Infoln(args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Error(args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Errorf(format string, args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Errorln(args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Warn(args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Warnf(format string, args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Warnln(args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Debug(args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Debugf(format string, args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Debugln(args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Fatal(args ...any) {
	if l.IsLevelEnabled(FatalLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Fatalf(format string, args ...any) {
	if l.IsLevelEnabled(FatalLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Fatalln(args ...any) {
	if l.IsLevelEnabled(FatalLevel) {
		log.Println(args...)
	}
}

//nolint:ireturn
func (l *GoLogger) WithFields(fields ...any) Logger {
	return &GoLogger{
		Level:  l.Level,
		fields: fields,
	}
}

func (l *GoLogger) Sync() error { return nil }

type loggerContextKey string

// NewLoggerFromContext extracts the Logger stored by ContextWithLogger,
// falling back to NoneLogger so callers never need a nil check.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) Logger {
	if logger := ctx.Value(loggerContextKey("logger")); logger != nil {
		if l, ok := logger.(Logger); ok {
			return l
		}
	}

	return &NoneLogger{}
}

// ContextWithLogger returns a context carrying logger, retrievable via
// NewLoggerFromContext.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey("logger"), logger)
}
