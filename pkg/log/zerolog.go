package log

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// zerologLogger implements Logger on top of zerolog.
type zerologLogger struct {
	zl    zerolog.Logger
	level *atomic.Int64
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields) }

// With implements Logger.With.
func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			ctx = ctx.AnErr(key, err)
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

// Enabled implements Logger.Enabled.
func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return int64(level) >= l.level.Load()
}

func (l *zerologLogger) log(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	ev := l.zl.WithLevel(toZerologLevel(level))

	// A leading error without a key is logged under "error".
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			addError(ev, ErrAttrKey, err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			addError(ev, key, v)
		case time.Duration:
			ev.Dur(key, v)
		case zerolog.LogObjectMarshaler:
			ev.Object(key, v)
		default:
			ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func addError(ev *zerolog.Event, key string, err error) {
	ev.AnErr(key, err)
	var detail zerolog.LogObjectMarshaler
	if errors.As(err, &detail) {
		ev.Object(key+"_detail", detail)
		ev.Str(ErrorTypeKey, typeName(detail))
	}
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceAttrKey, st)
	}
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// ZerologProvider implements LoggerProvider with a shared zerolog root logger.
// SetLevel affects every logger the provider has handed out.
type ZerologProvider struct {
	root  zerolog.Logger
	level *atomic.Int64
}

// NewZerologProvider creates a provider writing to w.
func NewZerologProvider(w io.Writer, level Level, console bool) *ZerologProvider {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	lvl := &atomic.Int64{}
	lvl.Store(int64(level))
	return &ZerologProvider{
		root:  zerolog.New(w).With().Timestamp().Logger(),
		level: lvl,
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int64(level))
}

// scopedLogger drops records below a minimum level before they reach the
// wrapped logger.
type scopedLogger struct {
	next Logger
	min  Level
}

// WithMinLevel returns a logger that discards records below min. It is used
// to silence a single component (e.g. a quiet annotation run) without
// touching the process-wide level.
func WithMinLevel(l Logger, min Level) Logger {
	if s, ok := l.(*scopedLogger); ok {
		l = s.next
	}
	return &scopedLogger{next: l, min: min}
}

func (s *scopedLogger) Debug(msg string, fields ...any) {
	if s.min <= LevelDebug {
		s.next.Debug(msg, fields...)
	}
}

func (s *scopedLogger) Info(msg string, fields ...any) {
	if s.min <= LevelInfo {
		s.next.Info(msg, fields...)
	}
}

func (s *scopedLogger) Warn(msg string, fields ...any) {
	if s.min <= LevelWarn {
		s.next.Warn(msg, fields...)
	}
}

func (s *scopedLogger) Error(msg string, fields ...any) {
	if s.min <= LevelError {
		s.next.Error(msg, fields...)
	}
}

func (s *scopedLogger) With(fields ...any) Logger {
	return &scopedLogger{next: s.next.With(fields...), min: s.min}
}

func (s *scopedLogger) Enabled(ctx context.Context, level Level) bool {
	return level >= s.min && s.next.Enabled(ctx, level)
}
