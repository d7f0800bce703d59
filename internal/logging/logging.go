// Package logging builds the daemon's slog.Logger.
//
// Normal operation is silent: the default level is warn, and records are
// written to stderr or to a log file, never to stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// LevelTrace defines a custom slog level below Debug for very verbose output.
const LevelTrace slog.Level = -8

// ParseLevel maps a flag value to a slog level. Unknown values fall back to warn.
func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Setup builds a text logger at the given level. Records go to logFile when
// set, otherwise to stderr. The returned closers must be closed on exit.
func Setup(logLevel, logFile string, stderr io.Writer) (*slog.Logger, []io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewTextHandler(f, opts)), []io.Closer{f}, nil
}
