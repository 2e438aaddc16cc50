// Package report pairs the per-operation statistics of two benchmark runs
// and renders the comparison as a console table and a CSV record.
package report

import (
	"fmt"
	"time"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/metrics"
)

// Metric names as they appear in the CSV.
const (
	MetricThroughput    = "throughput"
	MetricMeanLatency   = "average_latency"
	MetricMedianLatency = "median_latency"
	MetricP95Latency    = "p95_latency"
	MetricP99Latency    = "p99_latency"
	MetricErrors        = "errors"
)

// Row is one compared metric.
type Row struct {
	// Metric is the CSV name, Label the console name.
	Metric  string
	Label   string
	A       float64
	B       float64
	Diff    float64
	Percent float64
}

// OperationComparison holds every compared metric of one operation.
type OperationComparison struct {
	Operation  string
	Throughput Row
	Latencies  []Row
	Errors     Row

	StatsA metrics.Stats
	StatsB metrics.Stats
}

// Comparison is the full A/B report.
type Comparison struct {
	ModeA      string
	ModeB      string
	Operations []OperationComparison
}

// Options selects the statistics window.
type Options struct {
	// WindowStart and WindowEnd are fractions of the configured trial
	// duration.
	WindowStart float64
	WindowEnd   float64

	// Duration is the configured trial duration.
	Duration time.Duration

	// RecordedDuration windows each trial over its recorded duration
	// (the exhaustion time of a finite trial, else its elapsed time)
	// instead of Duration.
	RecordedDuration bool
}

// WindowFor returns the statistics window of m under opts.
func WindowFor(m *metrics.Metrics, opts Options) metrics.Window {
	if opts.RecordedDuration {
		return m.RecordedWindow(opts.Duration, opts.WindowStart, opts.WindowEnd)
	}
	return m.Window(opts.Duration, opts.WindowStart, opts.WindowEnd)
}

// DefaultOptions is the middle half of every trial.
func DefaultOptions(d time.Duration) Options {
	return Options{WindowStart: 0.25, WindowEnd: 0.75, Duration: d}
}

// NewRow computes diff = a - b and percent = diff / b * 100. The percent is
// 0 when b is 0.
func NewRow(metric, label string, a, b float64) Row {
	diff := a - b
	var pct float64
	if b != 0 {
		pct = diff / b * 100
	}
	return Row{Metric: metric, Label: label, A: a, B: b, Diff: diff, Percent: pct}
}

// Compare pairs a and b by operation, in a's order. Every operation must be
// present in both and have samples inside its window; otherwise Compare
// fails with a REPORT error.
func Compare(a, b *metrics.BenchmarkResult, opts Options) (*Comparison, error) {
	if a == nil || b == nil {
		return nil, benchErrors.NewReportError(benchErrors.CodeMismatch, "report: both results are required", nil)
	}
	if len(a.Operations) != len(b.Operations) {
		return nil, benchErrors.NewReportError(benchErrors.CodeMismatch,
			fmt.Sprintf("report: %s has %d operations, %s has %d", a.Mode, len(a.Operations), b.Mode, len(b.Operations)), nil)
	}

	c := &Comparison{ModeA: a.Mode, ModeB: b.Mode}
	for _, ma := range a.Operations {
		mb := b.Lookup(ma.Operation())
		if mb == nil {
			return nil, benchErrors.NewReportError(benchErrors.CodeMismatch,
				fmt.Sprintf("report: operation %s missing from %s", ma.Operation(), b.Mode), nil)
		}

		sa, err := windowStats(ma, a.Mode, opts)
		if err != nil {
			return nil, err
		}
		sb, err := windowStats(mb, b.Mode, opts)
		if err != nil {
			return nil, err
		}
		c.Operations = append(c.Operations, compareOperation(ma, mb, sa, sb))
	}
	return c, nil
}

func windowStats(m *metrics.Metrics, mode string, opts Options) (metrics.Stats, error) {
	w := WindowFor(m, opts)
	s, ok := m.Stats(w)
	if !ok {
		return metrics.Stats{}, benchErrors.NewReportError(benchErrors.CodeNoDataInWindow,
			fmt.Sprintf("report: no data in window %s for %s (%s)", w, m.Operation(), mode), nil).
			WithDetails(map[string]interface{}{
				"operation": m.Operation(),
				"mode":      mode,
				"samples":   m.TotalOps(),
			})
	}
	return s, nil
}

func compareOperation(ma, mb *metrics.Metrics, sa, sb metrics.Stats) OperationComparison {
	la, lb := sa.Latency, sb.Latency
	return OperationComparison{
		Operation:  ma.Operation(),
		Throughput: NewRow(MetricThroughput, "Throughput", sa.Throughput, sb.Throughput),
		Latencies: []Row{
			NewRow(MetricMeanLatency, "Average", la.Mean, lb.Mean),
			NewRow(MetricMedianLatency, "Median", la.Median, lb.Median),
			NewRow(MetricP95Latency, "P95", la.P95, lb.P95),
			NewRow(MetricP99Latency, "P99", la.P99, lb.P99),
		},
		Errors: NewRow(MetricErrors, "Errors", float64(ma.ErrorCount()), float64(mb.ErrorCount())),
		StatsA: sa,
		StatsB: sb,
	}
}

// Rows returns the operation's rows in CSV order.
func (o OperationComparison) Rows() []Row {
	rows := make([]Row, 0, len(o.Latencies)+2)
	rows = append(rows, o.Throughput)
	rows = append(rows, o.Latencies...)
	return append(rows, o.Errors)
}
