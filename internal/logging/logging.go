// Package logging wraps zap into the small Logger shape used across the
// gateway: a Debug/Info/Warn/Error surface backed by a real structured
// logger instead of ad hoc fmt.Printf calls.
//
// No function in this package accepts a raw guest payload, argument, or
// channel key. Callers pass session ids, error kinds, and sizes only, per
// the gateway's no-plaintext-logging rule.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin structured-logging facade.
type Logger struct {
	z *zap.Logger
}

// New builds a production-style JSON logger at the given level.
// debug enables a human-readable console encoder instead.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	z, err := cfg.Build()
	if err != nil {
		// Logging must never prevent startup; fall back to a no-op core.
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, for use in tests.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger carrying the given structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error { return l.z.Sync() }

// SessionID is a convenience field constructor so call sites never pass a
// raw session struct (and thus never a channel key) into a log line.
func SessionID(id string) zap.Field { return zap.String("session_id", id) }

// ByteSize records the length of a guest-controlled byte slice without
// ever logging its contents.
func ByteSize(key string, n int) zap.Field { return zap.Int(key, n) }

// ErrorKind records the gateway error Kind as a string field.
func ErrorKind(kind string) zap.Field { return zap.String("error_kind", kind) }
