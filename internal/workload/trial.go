package workload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"github.com/dmlbench/dmlbench/internal/keyspace"
	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/store"
)

// Defaults for the executor shape parameters.
const (
	DefaultRangeUpdateSpan  = 10
	DefaultRangeDeleteBatch = 3
	DefaultInsertKeyspace   = 0x7fffffff
)

// TrialConfig describes one (operation, mode) trial.
type TrialConfig struct {
	Operation Operation
	Mode      string

	// Rows is the loaded key space; workers partition it.
	Rows        int64
	Concurrency int
	Duration    time.Duration

	// ThinkTime is slept after every iteration when positive.
	ThinkTime time.Duration

	// MaxRate caps iterations per second across all workers; 0 disables.
	MaxRate float64

	InsertKeyspace   int64
	RangeUpdateSpan  int64
	RangeDeleteBatch int64
	Scatter          bool
	Seed             int64
}

func (c *TrialConfig) applyDefaults() {
	if c.InsertKeyspace <= 0 {
		c.InsertKeyspace = DefaultInsertKeyspace
	}
	if c.RangeUpdateSpan <= 0 {
		c.RangeUpdateSpan = DefaultRangeUpdateSpan
	}
	if c.RangeDeleteBatch <= 0 {
		c.RangeDeleteBatch = DefaultRangeDeleteBatch
	}
}

// Validate checks the trial can run.
func (c *TrialConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("workload: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("workload: duration must be positive, got %v", c.Duration)
	}
	if c.Operation != OpInsert && c.Rows < int64(c.Concurrency) {
		return fmt.Errorf("workload: rows (%d) must be at least concurrency (%d)", c.Rows, c.Concurrency)
	}
	if _, err := ExecutorFor(c.Operation); err != nil {
		return err
	}
	return nil
}

// TrialResult is the finalized output of one trial.
type TrialResult struct {
	Operation Operation
	Mode      string
	Metrics   *metrics.Metrics

	// Elapsed is the wall-clock time until every worker joined.
	Elapsed time.Duration

	// Exhausted is set when a finite operation ran out of rows; then
	// ActualDuration holds when that happened.
	Exhausted      bool
	ActualDuration time.Duration

	// Reported is the duration to divide whole-trial counts by.
	Reported time.Duration

	Remaining int64
}

// TrialOption customizes a trial run.
type TrialOption func(*trialOptions)

type trialOptions struct {
	observer Observer
	logger   pslog.Logger
}

// WithObserver streams iteration outcomes to o.
func WithObserver(o Observer) TrialOption {
	return func(t *trialOptions) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLogger sets the trial logger.
func WithLogger(l pslog.Logger) TrialOption {
	return func(t *trialOptions) {
		if l != nil {
			t.logger = l
		}
	}
}

// RunTrial spawns cfg.Concurrency workers against src and returns once all
// of them have joined. Per-iteration failures are counted, never returned.
func RunTrial(ctx context.Context, cfg TrialConfig, src SessionSource, queries store.Queries, opts ...TrialOption) (*TrialResult, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := trialOptions{observer: noopObserver{}, logger: pslog.NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	exec, err := ExecutorFor(cfg.Operation)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.MaxRate > 0 {
		burst := cfg.Concurrency
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), burst)
	}

	m := metrics.NewMetrics(cfg.Operation.String())
	state := NewState(cfg.Rows)
	firstErr := &sync.Once{}

	o.logger.Info("trial.start",
		"operation", cfg.Operation.String(),
		"mode", cfg.Mode,
		"concurrency", cfg.Concurrency,
		"duration", cfg.Duration.String(),
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		w := &worker{
			id:   i,
			op:   cfg.Operation,
			mode: cfg.Mode,
			exec: exec,
			env: &Env{
				Queries:          queries,
				State:            state,
				Range:            keyspace.Partition(i, cfg.Concurrency, cfg.Rows),
				Rand:             newRand(WorkerSeed(cfg.Seed, cfg.Operation, cfg.Mode, i)),
				Rows:             cfg.Rows,
				InsertKeyspace:   cfg.InsertKeyspace,
				RangeUpdateSpan:  cfg.RangeUpdateSpan,
				RangeDeleteBatch: cfg.RangeDeleteBatch,
				Scatter:          cfg.Scatter,
			},
			source:   src,
			metrics:  m,
			duration: cfg.Duration,
			think:    cfg.ThinkTime,
			limiter:  limiter,
			observer: o.observer,
			logger:   o.logger,
			firstErr: firstErr,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}
	wg.Wait()

	elapsed := state.Elapsed()
	actual, exhausted := state.ActualDuration()
	m.SetDuration(state.ReportedDuration(elapsed))
	result := &TrialResult{
		Operation:      cfg.Operation,
		Mode:           cfg.Mode,
		Metrics:        m,
		Elapsed:        elapsed,
		Exhausted:      exhausted,
		ActualDuration: actual,
		Reported:       state.ReportedDuration(elapsed),
		Remaining:      state.Remaining(),
	}

	o.logger.Info("trial.done",
		"operation", cfg.Operation.String(),
		"mode", cfg.Mode,
		"ops", m.TotalOps(),
		"errors", m.ErrorCount(),
		"elapsed", elapsed.Round(time.Millisecond).String(),
		"exhausted", exhausted,
	)
	return result, nil
}

// Throughput is whole-trial successful operations per reported second.
func (r *TrialResult) Throughput() float64 {
	if r.Reported <= 0 {
		return 0
	}
	return float64(r.Metrics.TotalOps()) / r.Reported.Seconds()
}
