package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelWarn, false)
)

// GetLogger returns the default logger of the process provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the given component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetProvider replaces the process provider. Tests use it with a TestLoggerProvider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// SetupLogger function setup logger.
// level is one of "debug", "info", "warn" or "error". When console is true
// records are rendered for humans with zerolog.ConsoleWriter, otherwise they
// are written as JSON lines. Warnings raised through errors.Warn are routed
// to the new logger.
func SetupLogger(level string, w io.Writer, console bool) error {
	lvl, err := ToLogLevel(level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}

	p := NewZerologProvider(w, lvl, console)
	SetProvider(p)

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(warning error) {
		warnLogger.Warn(warning.Error(), ErrorTypeKey, typeName(warning))
	})
	return nil
}

// ToLogLevel converts a level name to a Level.
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err)
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
