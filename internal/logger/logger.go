// Package logger configures the process-wide slog.Logger from CLI flags.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// globalLogger is the configured slog.Logger; read it with L().
var globalLogger *slog.Logger

var initOnce sync.Once

// L returns the configured logger. Before Configure is called it falls back
// to a text logger at INFO so early callers never hit a nil logger.
func L() *slog.Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			globalLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
		}
	})

	return globalLogger
}

// Set replaces the global logger. Intended for tests and custom wiring.
func Set(newLogger *slog.Logger) {
	globalLogger = newLogger
}

// Configure builds and installs the global logger.
// format is one of "json", "text" or "plain" (unknown falls back to text);
// level is one of "debug", "info", "warn", "error"; includeTime controls
// whether log records carry a time attribute.
func Configure(format, level string, includeTime bool) *slog.Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       logLevel,
			ReplaceAttr: timeStripper(includeTime),
		})
	case "plain":
		handler = newPlainHandler(os.Stdout, logLevel, includeTime)
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       logLevel,
			ReplaceAttr: timeStripper(includeTime),
		})
	}

	configured := slog.New(handler)
	Set(configured)

	return configured
}

// timeStripper returns a ReplaceAttr func that drops the time attribute when
// includeTime is false, and nil (no-op) otherwise.
func timeStripper(includeTime bool) func([]string, slog.Attr) slog.Attr {
	if includeTime {
		return nil
	}

	return func(_ []string, attr slog.Attr) slog.Attr {
		if attr.Key == slog.TimeKey {
			return slog.Attr{}
		}

		return attr
	}
}

// parseLevel maps a level string to slog.Level. Unknown inputs mean INFO.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal", "panic":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
