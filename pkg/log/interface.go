// Package log is the structured logging layer of the annotation pipeline.
//
// Components take a Logger (usually via a WithLogger option) and log with
// key/value pairs using the keys in attributes.go:
//
//	logger := log.GetLoggerWithName("annotate").With(log.ModelNameKey, "Immune_All_Low")
//	logger.Info("Input data loaded", log.CellsKey, 2000, log.GenesKey, 18000)
//
// The process-wide backend is zerolog; tests swap in a TestLogger.
package log

import (
	"context"
)

// Logger is the slog-shaped interface every component logs through.
// fields are alternating keys and values. An error passed as the first
// field of Error is logged with its stack.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a child logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled guards expensive field computation, e.g. per-cluster sizes.
	Enabled(ctx context.Context, level Level) bool
}

// Level uses the same numeric values as slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider hands out loggers sharing one level and sink.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
