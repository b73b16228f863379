// Package logger wraps zap with the key/value call style used across the
// tracker.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Logger is a thin key/value wrapper around a sugared zap logger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for the given mode. "prod" and "production" select
// zap's JSON production config at info level. Anything else yields the
// console development config with debug enabled.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Sync flushes buffered entries. Errors are dropped since stderr sync
// fails on most terminals.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

// Debug logs msg with alternating key/value pairs.
func (l *Logger) Debug(msg string, kv ...any) {
	l.SugaredLogger.Debugw(msg, kv...)
}

// Info logs msg with alternating key/value pairs.
func (l *Logger) Info(msg string, kv ...any) {
	l.SugaredLogger.Infow(msg, kv...)
}

// Warn logs msg with alternating key/value pairs.
func (l *Logger) Warn(msg string, kv ...any) {
	l.SugaredLogger.Warnw(msg, kv...)
}

// Error logs msg with alternating key/value pairs.
func (l *Logger) Error(msg string, kv ...any) {
	l.SugaredLogger.Errorw(msg, kv...)
}

// Fatal logs msg and exits the process.
func (l *Logger) Fatal(msg string, kv ...any) {
	l.SugaredLogger.Fatalw(msg, kv...)
}

// With returns a child logger that adds kv to every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(kv...)}
}
