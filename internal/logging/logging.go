// Package logging builds the structured logger shared by every component
// of a benchmark session.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// New returns a logger at level writing to path, or to stderr when path is
// empty. An empty level, "none", "off" or "disabled" yields a no-op logger. The
// returned cleanup closes the log file.
func New(level, path string) (pslog.Logger, func(), error) {
	return newLogger(level, path, os.Stderr)
}

func newLogger(level, path string, stderr io.Writer) (pslog.Logger, func(), error) {
	levelStr := strings.TrimSpace(level)
	switch strings.ToLower(levelStr) {
	case "", "none", "disabled", "off":
		return pslog.NoopLogger(), func() {}, nil
	}
	lvl, ok := pslog.ParseLevel(levelStr)
	if !ok {
		return nil, nil, fmt.Errorf("logging: invalid log level %q", levelStr)
	}
	if lvl == pslog.Disabled || lvl == pslog.NoLevel {
		return pslog.NoopLogger(), func() {}, nil
	}

	var (
		writer  = stderr
		cleanup = func() {}
	)
	if strings.TrimSpace(path) != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: log path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: log path mkdir: %w", err)
		}
		f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: log path create: %w", err)
		}
		writer = f
		cleanup = func() { _ = f.Close() }
	}
	return pslog.NewStructured(writer).LogLevel(lvl), cleanup, nil
}
