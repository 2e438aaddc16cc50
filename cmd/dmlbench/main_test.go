package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/dmlbench/dmlbench/internal/config"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "dmlbench version dev") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	registerRunFlags(flags)
	if err := flags.Parse([]string{
		"--driver", "sqlite3",
		"-c", "8",
		"--duration", "90s",
		"--operations", "point_update,range_delete",
		"--max-rate", "500",
		"--scatter=false",
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Workload.Rows = 1234 // from a file; --rows was not given
	if err := applyFlags(flags, cfg); err != nil {
		t.Fatalf("applyFlags failed: %v", err)
	}

	if cfg.Store.Driver != "sqlite3" || cfg.Workload.Concurrency != 8 || cfg.Workload.Duration != 90*time.Second {
		t.Errorf("flags not applied: %+v %+v", cfg.Store, cfg.Workload)
	}
	if len(cfg.Workload.Operations) != 2 || cfg.Workload.Operations[1] != "range_delete" {
		t.Errorf("unexpected operations %v", cfg.Workload.Operations)
	}
	if cfg.Workload.MaxRate != 500 || cfg.Workload.Scatter {
		t.Errorf("unexpected rate/scatter %v %v", cfg.Workload.MaxRate, cfg.Workload.Scatter)
	}
	if cfg.Workload.Rows != 1234 {
		t.Errorf("unset flag overrode file value: rows=%d", cfg.Workload.Rows)
	}
}

func TestReportCommand_RequiresInput(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"report"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--samples") {
		t.Errorf("expected missing input error, got %v", err)
	}
}

func TestRunCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"run",
		"--env-file", dir + "/absent.env",
		"--driver", "sqlite3",
		"--database", dir + "/bench.db",
		"--rows", "100",
		"--concurrency", "2",
		"--duration", "200ms",
		"--operation-interval", "0s",
		"--operations", "point_update,range_update",
		"--window-start", "0",
		"--window-end", "1",
		"--output-dir", dir,
		"--log-level", "disabled",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}
	for _, want := range []string{"Comparative Benchmark Results", "Operation: range_update", "Results saved to"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
}
