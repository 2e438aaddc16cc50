package workload

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/store"
)

// SessionSource hands out store sessions.
type SessionSource interface {
	Acquire(ctx context.Context) (store.Session, error)
}

// Observer receives every iteration outcome as it happens, e.g. to export
// live counters. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveSuccess(op Operation, mode string, latency time.Duration)
	ObserveError(op Operation, mode string, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveSuccess(Operation, string, time.Duration) {}
func (noopObserver) ObserveError(Operation, string, error)          {}

// worker runs one operation in a loop until its duration elapses or, for
// finite operations, the shared rows run out.
type worker struct {
	id       int
	op       Operation
	mode     string
	exec     Executor
	source   SessionSource
	env      *Env
	metrics  *metrics.Metrics
	duration time.Duration
	think    time.Duration
	limiter  *rate.Limiter
	observer Observer
	logger   pslog.Logger

	// firstErr is shared by all workers of a trial.
	firstErr *sync.Once
}

func (w *worker) keepGoing(ctx context.Context, started time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	if time.Since(started) >= w.duration {
		return false
	}
	return !w.op.Finite() || w.env.State.Remaining() > 0
}

func (w *worker) run(ctx context.Context) {
	state := w.env.State
	started := time.Now()

	for w.keepGoing(ctx, started) {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
			// the token may arrive after the trial is over
			if time.Since(started) >= w.duration {
				break
			}
		}

		opStart := time.Now()
		outcome, err := w.iterate(ctx)
		switch {
		case err != nil:
			w.metrics.RecordError()
			w.observer.ObserveError(w.op, w.mode, err)
			w.logError(err)
		case outcome == Done:
			latency := time.Since(opStart)
			w.metrics.Record(time.Since(state.Start()), float64(latency.Microseconds())/1000)
			w.observer.ObserveSuccess(w.op, w.mode, latency)
		}

		if w.op.Finite() && state.Remaining() <= 0 {
			if state.MarkExhausted(state.Elapsed()) {
				w.logger.Info("trial.exhausted",
					"operation", w.op.String(),
					"mode", w.mode,
					"worker", w.id,
					"elapsed_ms", state.Elapsed().Milliseconds(),
				)
			}
		}

		if w.think > 0 {
			time.Sleep(w.think)
		}
	}
}

// iterate acquires a session and runs the executor once.
func (w *worker) iterate(ctx context.Context) (Outcome, error) {
	sess, err := w.source.Acquire(ctx)
	if err != nil {
		return Done, err
	}
	defer sess.Release()
	return w.exec(ctx, sess, w.env)
}

func (w *worker) logError(err error) {
	w.logger.Debug("worker.error",
		"operation", w.op.String(),
		"mode", w.mode,
		"worker", w.id,
		"category", string(benchErrors.GetCategory(err)),
		"error", err.Error(),
	)
	w.firstErr.Do(func() {
		w.logger.Warn("trial.first_error",
			"operation", w.op.String(),
			"mode", w.mode,
			"worker", w.id,
			"error", err.Error(),
		)
	})
}
