// Package app runs a benchmark session: for every configured operation it
// prepares the table and runs one trial per mode, then compares the two
// modes and writes the report.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"pkt.systems/pslog"

	"github.com/dmlbench/dmlbench/internal/config"
	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/observability"
	"github.com/dmlbench/dmlbench/internal/report"
	"github.com/dmlbench/dmlbench/internal/server"
	"github.com/dmlbench/dmlbench/internal/storage"
	"github.com/dmlbench/dmlbench/internal/store"
	"github.com/dmlbench/dmlbench/internal/workload"
)

// App manages one benchmark session.
type App struct {
	cfg    *config.Config
	logger pslog.Logger
	out    io.Writer

	// Shared resources
	store      *store.SQLStore
	archive    storage.ObjectStorage
	shutdown   *server.ShutdownManager
	telemetry  *server.Telemetry
	stats      *observability.TrialStats
	collectors *observability.Collectors

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Option customizes an App.
type Option func(*App)

// WithLogger sets the session logger.
func WithLogger(l pslog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithOutput sets where the console report is written. Default: stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// Session is the outcome of a completed run.
type Session struct {
	RunID      string
	Started    time.Time
	Results    [2]*metrics.BenchmarkResult
	Comparison *report.Comparison

	CSVPath  string
	DumpPath string
	Archived []string
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: pslog.NoopLogger(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start connects to the store, opens the archive and starts telemetry.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	sc := server.DefaultShutdownConfig()
	sc.Logger = a.logger
	a.shutdown = server.NewShutdownManager(sc)
	a.shutdown.OnShutdownStart(func(reason string) {
		a.logger.Info("shutdown.start", "reason", reason)
		a.cancelRun()
	})

	st, err := store.Open(ctx, a.cfg.StoreConfig(), a.logger)
	if err != nil {
		a.cleanup(ctx)
		return err
	}
	a.store = st
	a.shutdown.RegisterCloser("store", st)

	archive, err := storage.New(ctx, a.cfg.ArchiveStorage())
	if err != nil {
		a.cleanup(ctx)
		return fmt.Errorf("failed to open archive storage: %w", err)
	}
	a.archive = archive

	a.stats = observability.NewTrialStats(0)
	a.collectors = observability.NewCollectors(a.stats)
	a.telemetry = server.NewTelemetry(server.TelemetryConfig{
		MetricsAddr: a.cfg.Telemetry.MetricsAddr,
		GRPCAddr:    a.cfg.Telemetry.GRPCAddr,
	}, a.collectors.Handler(), a.stats, a.logger)
	if err := a.telemetry.Start(a.shutdown); err != nil {
		a.cleanup(ctx)
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	a.logger.Info("app.started",
		"driver", a.cfg.Store.Driver,
		"rows", humanize.Comma(a.cfg.Workload.Rows),
		"concurrency", a.cfg.Workload.Concurrency,
		"duration", a.cfg.Workload.Duration.String(),
		"seed", a.cfg.Workload.Seed,
	)
	return nil
}

// ShutdownManager returns the manager that stops the session; signals
// delivered to it cancel a running session.
func (a *App) ShutdownManager() *server.ShutdownManager {
	return a.shutdown
}

// Stats returns the finished trial summaries.
func (a *App) Stats() *observability.TrialStats {
	return a.stats
}

// Telemetry returns the telemetry servers.
func (a *App) Telemetry() *server.Telemetry {
	return a.telemetry
}

// Run executes every trial and writes the report. It must follow Start.
func (a *App) Run(ctx context.Context) (*Session, error) {
	if a.store == nil {
		return nil, fmt.Errorf("app is not started")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	ops, err := a.cfg.ParsedOperations()
	if err != nil {
		return nil, err
	}
	modes, err := a.cfg.ParsedModes()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		RunID:   report.NewRunID(),
		Started: time.Now(),
		Results: [2]*metrics.BenchmarkResult{
			metrics.NewBenchmarkResult(string(modes[0])),
			metrics.NewBenchmarkResult(string(modes[1])),
		},
	}
	a.logger.Info("run.start", "run_id", sess.RunID, "operations", len(ops))

	queries := store.NewQueries(a.cfg.Store.Table, a.store.Dialect())
	for _, op := range ops {
		for i, mode := range modes {
			res, err := a.runTrial(ctx, op, mode, queries)
			if err != nil {
				return nil, err
			}
			sess.Results[i].Add(res.Metrics)
		}
	}

	if err := a.writeReport(ctx, sess); err != nil {
		return nil, err
	}
	a.telemetry.SetPhase(server.PhaseDone)
	a.logger.Info("run.done", "run_id", sess.RunID, "elapsed", time.Since(sess.Started).Round(time.Second).String())
	return sess, nil
}

// runTrial prepares the table, applies mode and runs one trial.
func (a *App) runTrial(ctx context.Context, op workload.Operation, mode store.Mode, queries store.Queries) (*workload.TrialResult, error) {
	a.telemetry.SetPhase(server.PhasePreparing)
	if err := store.Prepare(ctx, a.store, a.cfg.PrepareOptions(op), a.logger); err != nil {
		return nil, err
	}
	if err := a.store.ApplyMode(ctx, mode); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, a.cfg.Workload.OperationInterval); err != nil {
		return nil, fmt.Errorf("app: run interrupted: %w", err)
	}

	a.telemetry.SetPhase(server.PhaseRunning)
	res, err := workload.RunTrial(ctx, a.cfg.TrialConfig(op, mode), a.store, queries,
		workload.WithObserver(a.collectors),
		workload.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("app: run interrupted: %w", err)
	}

	a.recordSummary(res)
	return res, nil
}

func (a *App) recordSummary(res *workload.TrialResult) {
	m := res.Metrics
	s, ok := m.Stats(report.WindowFor(m, a.cfg.ReportOptions()))
	summary := observability.TrialSummary{
		Operation:  res.Operation.String(),
		Mode:       res.Mode,
		TotalOps:   m.TotalOps(),
		Errors:     m.ErrorCount(),
		Throughput: s.Throughput,
		MeanMs:     s.Latency.Mean,
		P95Ms:      s.Latency.P95,
		Elapsed:    res.Elapsed.Round(time.Millisecond).String(),
		Exhausted:  res.Exhausted,
		Finished:   time.Now(),
	}
	a.collectors.ObserveTrial(summary)

	if !ok {
		a.logger.Warn("trial.summary.empty_window", "operation", summary.Operation, "mode", summary.Mode)
		return
	}
	a.logger.Info("trial.summary",
		"operation", summary.Operation,
		"mode", summary.Mode,
		"ops", humanize.Comma(summary.TotalOps),
		"throughput", fmt.Sprintf("%.2f", summary.Throughput),
		"mean_ms", fmt.Sprintf("%.3f", summary.MeanMs),
		"p95_ms", fmt.Sprintf("%.3f", summary.P95Ms),
	)
}

// writeReport saves the sample dump first so a failed comparison can be
// recomputed offline, then compares, prints, saves and archives.
func (a *App) writeReport(ctx context.Context, sess *Session) error {
	a.telemetry.SetPhase(server.PhaseReporting)
	dir := a.cfg.Report.OutputDir

	if a.cfg.Report.SaveSamples {
		p, err := report.SaveDump(dir, metrics.Dump{
			RunID:     sess.RunID,
			CreatedAt: sess.Started,
			Duration:  a.cfg.Workload.Duration,
			Results:   []metrics.ResultSnapshot{sess.Results[0].Snapshot(), sess.Results[1].Snapshot()},
		})
		if err != nil {
			return err
		}
		sess.DumpPath = p
		a.logger.Info("report.samples", "path", p)
	}

	c, err := report.Compare(sess.Results[0], sess.Results[1], a.cfg.ReportOptions())
	if err != nil {
		return err
	}
	sess.Comparison = c

	if err := report.WriteConsole(a.out, c); err != nil {
		return fmt.Errorf("app: failed to print report: %w", err)
	}

	p, err := report.SaveCSV(dir, sess.Started, c)
	if err != nil {
		return err
	}
	sess.CSVPath = p
	a.logger.Info("report.csv", "path", p)

	if a.archive != nil {
		files := []string{sess.CSVPath}
		if sess.DumpPath != "" {
			files = append(files, sess.DumpPath)
		}
		objects, err := report.Archive(ctx, a.archive, a.cfg.Report.Archive.Prefix, sess.RunID, files...)
		if err != nil {
			return err
		}
		sess.Archived = objects
		a.logger.Info("report.archived", "objects", len(objects), "type", a.cfg.Report.Archive.Type)
	}
	return nil
}

// Stop cancels a running session and closes every resource.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	return a.shutdown.Shutdown(ctx, "run complete")
}

func (a *App) cancelRun() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// cleanup releases what a failed Start acquired.
func (a *App) cleanup(ctx context.Context) {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	if err := a.shutdown.Shutdown(ctx, "start failed"); err != nil {
		a.logger.Warn("app.cleanup", "error", err.Error())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
