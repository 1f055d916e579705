package lightbake

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes leveled console output through zap. The debug level
// can be toggled at runtime without rebuilding the core.
type DefaultLogger struct {
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	if prefix != "" {
		base = base.Named(prefix)
	}
	return &DefaultLogger{
		level: level,
		base:  base,
		sugar: base.Sugar(),
	}
}

// Zap exposes the structured logger for call sites that attach fields.
func (l *DefaultLogger) Zap() *zap.Logger {
	return l.base
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	if enabled {
		l.level.SetLevel(zapcore.DebugLevel)
		return
	}
	l.level.SetLevel(zapcore.InfoLevel)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *DefaultLogger) Sync() {
	_ = l.base.Sync()
}

// Nop logger

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// zapLogger returns the structured logger behind l, or nil when l is not
// backed by zap.
func zapLogger(l Logger) *zap.Logger {
	if dl, ok := l.(*DefaultLogger); ok {
		return dl.Zap()
	}
	return nil
}
