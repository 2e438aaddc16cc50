package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_Disabled(t *testing.T) {
	for _, level := range []string{"", "none", "disabled"} {
		logger, cleanup, err := New(level, "")
		if err != nil {
			t.Fatalf("level %q: %v", level, err)
		}
		if logger == nil {
			t.Fatalf("level %q: nil logger", level)
		}
		logger.Info("ignored")
		cleanup()
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New("chatty", ""); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_WritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := newLogger("info", "", &buf)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	defer cleanup()

	logger.Debug("trial.skip", "operation", "insert")
	logger.Info("trial.start", "operation", "point_update", "workers", 4)

	out := buf.String()
	if strings.Contains(out, "trial.skip") {
		t.Error("debug lines must be filtered at info level")
	}
	if !strings.Contains(out, "trial.start") || !strings.Contains(out, "point_update") {
		t.Errorf("missing info line: %q", out)
	}
}

func TestNew_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bench.log")
	logger, cleanup, err := New("debug", path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("load.batch", "rows", 100)
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "load.batch") {
		t.Errorf("log file missing entry: %q", data)
	}
}
