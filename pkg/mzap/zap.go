// Package mzap implements mlog.Logger on top of go.uber.org/zap — the
// production logger wired into cmd/router and cmd/worker.
package mzap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LerianStudio/acsd/pkg/mlog"
)

// ZapLogger wraps a zap.SugaredLogger behind mlog.Logger.
type ZapLogger struct {
	Logger *zap.SugaredLogger
}

// NewZapLogger builds a production zap.SugaredLogger at the given level.
func NewZapLogger(level mlog.LogLevel) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Logger: logger.Sugar()}, nil
}

func toZapLevel(level mlog.LogLevel) zapcore.Level {
	switch level {
	case mlog.DebugLevel:
		return zapcore.DebugLevel
	case mlog.InfoLevel:
		return zapcore.InfoLevel
	case mlog.WarnLevel:
		return zapcore.WarnLevel
	case mlog.ErrorLevel:
		return zapcore.ErrorLevel
	case mlog.FatalLevel:
		return zapcore.FatalLevel
	case mlog.PanicLevel:
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Info(args ...any) { l.Logger.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any) { l.Logger.Infof(format, args...) }
func (l *ZapLogger) Infoln(args ...any) { l.Logger.Infoln(args...) }

func (l *ZapLogger) Error(args ...any) { l.Logger.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.Logger.Errorf(format, args...) }
func (l *ZapLogger) Errorln(args ...any) { l.Logger.Errorln(args...) }

func (l *ZapLogger) Warn(args ...any) { l.Logger.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any) { l.Logger.Warnf(format, args...) }
func (l *ZapLogger) Warnln(args ...any) { l.Logger.Warnln(args...) }

func (l *ZapLogger) Debug(args ...any) { l.Logger.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.Logger.Debugf(format, args...) }
func (l *ZapLogger) Debugln(args ...any) { l.Logger.Debugln(args...) }

func (l *ZapLogger) Fatal(args ...any) { l.Logger.Fatal(args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.Logger.Fatalf(format, args...) }
func (l *ZapLogger) Fatalln(args ...any) { l.Logger.Fatalln(args...) }

// WithFields adds structured context to the logger, returning a new
// logger and leaving the original unchanged.
//
//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) mlog.Logger {
	return &ZapLogger{Logger: l.Logger.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.Logger.Sync() }
