package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmlbench/dmlbench/internal/config"
	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/server"
	"github.com/dmlbench/dmlbench/internal/storage"
	"github.com/dmlbench/dmlbench/internal/store"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Store.Driver = store.DriverSQLite
	cfg.Store.Database = filepath.Join(dir, "bench.db")
	cfg.Workload.Rows = 200
	cfg.Workload.Concurrency = 2
	cfg.Workload.Duration = 300 * time.Millisecond
	cfg.Workload.OperationInterval = 0
	cfg.Workload.LoadBatchSize = 50
	cfg.Workload.Seed = 7
	cfg.Workload.Operations = []string{"insert", "point_update", "point_delete"}
	cfg.Report.OutputDir = filepath.Join(dir, "out")
	cfg.Report.WindowStart = 0
	cfg.Report.WindowEnd = 1
	cfg.Report.Archive.Type = storage.TypeLocal
	cfg.Report.Archive.Path = filepath.Join(dir, "archive")
	cfg.Telemetry.LogLevel = ""
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workload.Modes = []string{"optimistic"}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestApp_RunSQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	var out bytes.Buffer
	a, err := New(cfg, WithOutput(&out))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer a.Stop(ctx)

	sess, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sess.Comparison.Operations) != 3 {
		t.Fatalf("expected 3 compared operations, got %d", len(sess.Comparison.Operations))
	}
	if sess.Comparison.ModeA != "optimistic" || sess.Comparison.ModeB != "pessimistic" {
		t.Errorf("unexpected modes %s/%s", sess.Comparison.ModeA, sess.Comparison.ModeB)
	}
	for _, r := range sess.Results {
		del := r.Lookup("point_delete")
		if del == nil || del.TotalOps() != 200 {
			t.Errorf("%s: every row should be deleted once", r.Mode)
		}
	}

	if !strings.Contains(out.String(), "Operation: point_update") {
		t.Errorf("console report missing operation block:\n%s", out.String())
	}
	for _, p := range []string{sess.CSVPath, sess.DumpPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected output file %s: %v", p, err)
		}
	}
	if len(sess.Archived) != 2 || !strings.HasPrefix(sess.Archived[0], "dmlbench/"+sess.RunID+"/") {
		t.Errorf("unexpected archived objects %v", sess.Archived)
	}

	if got := len(a.Stats().Trials()); got != 6 {
		t.Errorf("expected 6 trial summaries, got %d", got)
	}
	if a.Telemetry().Phase() != server.PhaseDone {
		t.Errorf("expected phase done, got %s", a.Telemetry().Phase())
	}

	// the saved samples reproduce the comparison over another window
	var again bytes.Buffer
	c, csvPath, err := Rereport(ctx, ReportRequest{
		Samples:     sess.DumpPath,
		WindowStart: 0,
		WindowEnd:   1,
		OutputDir:   t.TempDir(),
	}, &again)
	if err != nil {
		t.Fatalf("Rereport failed: %v", err)
	}
	if csvPath == "" || len(c.Operations) != 3 {
		t.Errorf("unexpected rereport %v %d", csvPath, len(c.Operations))
	}
	if c.Operations[2].Throughput.A != sess.Comparison.Operations[2].Throughput.A {
		t.Error("rereport over the same window must match the live report")
	}

	// and from the archive, windowed over the recorded durations since the
	// deletes may run out well before the configured 300ms
	_, _, err = Rereport(ctx, ReportRequest{
		Object:         sess.Archived[1],
		Archive:        cfg.ArchiveStorage(),
		WindowStart:    0.1,
		WindowEnd:      0.9,
		RecordedWindow: true,
	}, &again)
	if err != nil {
		t.Fatalf("Rereport from archive failed: %v", err)
	}
}

func TestApp_ShutdownCancelsRun(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Workload.Duration = 30 * time.Second
	cfg.Workload.Operations = []string{"point_update"}

	a, err := New(cfg, WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		a.ShutdownManager().Shutdown(context.Background(), "test interrupt")
	}()

	start := time.Now()
	_, err = a.Run(ctx)
	if err == nil {
		t.Fatal("expected interrupted run")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("shutdown did not stop the run")
	}
	if err := a.Stop(ctx); err != nil {
		t.Errorf("Stop after shutdown should be a no-op, got %v", err)
	}
}

func TestRereport_Errors(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	missing := filepath.Join(t.TempDir(), "none.dump")

	if _, _, err := Rereport(ctx, ReportRequest{Samples: missing, WindowEnd: 1}, &out); benchErrors.GetCode(err) != benchErrors.CodeReadFailed {
		t.Errorf("expected read failure, got %v", err)
	}
	if _, _, err := Rereport(ctx, ReportRequest{Object: "runs/x.dump", WindowEnd: 1}, &out); benchErrors.GetCategory(err) != benchErrors.ErrCategoryConfig {
		t.Errorf("expected config error without archive storage, got %v", err)
	}
	if _, _, err := Rereport(ctx, ReportRequest{Samples: missing, WindowStart: 0.9, WindowEnd: 0.1}, &out); benchErrors.GetCategory(err) != benchErrors.ErrCategoryConfig {
		t.Errorf("expected config error for inverted window, got %v", err)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
