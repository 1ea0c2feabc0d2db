// Package log wraps zap in the functional-options style used
// throughout this module's host construction: log.New(log.WithWriter,
// log.WithLevel, log.WithFormat).
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a coarse severity threshold, independent of zapcore.Level so
// that callers of this package never need to import zap directly.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Format selects the encoder: human-readable console lines, or
// newline-delimited JSON for log aggregators.
type Format int

const (
	FormatUnstructured Format = iota
	FormatJSON
)

type options struct {
	writer io.Writer
	level  Level
	format Format
}

// Option configures a Logger built by New.
type Option func(*options)

// WithWriter sets the destination for log output. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithLevel sets the minimum level that is actually emitted.
func WithLevel(l Level) Option { return func(o *options) { o.level = l } }

// WithFormat selects the console or JSON encoder.
func WithFormat(f Format) Option { return func(o *options) { o.format = f } }

// Logger is a small leveled, structured logger backed by zap's sugared
// API, used across the p2p stack's host, registry, and peer manager.
type Logger struct {
	z *zap.SugaredLogger
}

// New builds a Logger from the given options, defaulting to an
// unstructured encoder at info level writing to stdout.
func New(opts ...Option) Logger {
	o := options{writer: os.Stdout, level: LevelInfo, format: FormatUnstructured}
	for _, opt := range opts {
		opt(&o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch o.format {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(o.writer), o.level.zapLevel())
	return Logger{z: zap.New(core).Sugar()}
}

// NewNoOp returns a Logger that discards everything written to it.
func NewNoOp() Logger { return Logger{z: zap.NewNop().Sugar()} }

// DiscardLogger is the shared no-op Logger, used as a default when the
// caller does not configure one.
var DiscardLogger = NewNoOp()

// Named returns a descendant logger tagged with name, following zap's
// dotted-name nesting convention.
func (l Logger) Named(name string) *Logger {
	nl := Logger{z: l.z.Named(name)}
	return &nl
}

// With returns a descendant logger with the given structured fields
// attached to every subsequent entry.
func (l *Logger) With(fields ...zapcore.Field) *Logger {
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	nl := Logger{z: l.z.With(args...)}
	return &nl
}

func (l Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

func (l Logger) Debugf(format string, args ...interface{}) { l.z.Debugf(format, args...) }
func (l Logger) Infof(format string, args ...interface{})  { l.z.Infof(format, args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.z.Warnf(format, args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.z.Errorf(format, args...) }

// Warnln concatenates args space-separated at warn level, matching the
// occasional call site that predates structured logging in this stack.
func (l Logger) Warnln(args ...interface{}) { l.z.Warn(fmt.Sprintln(args...)) }

// Sync flushes any buffered log entries.
func (l Logger) Sync() error { return l.z.Sync() }
