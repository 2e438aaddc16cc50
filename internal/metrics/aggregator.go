// Package metrics accumulates latency samples for one operation trial and
// computes windowed statistics over them.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one successful operation: when it completed relative to the
// trial start, and how long it took.
type Sample struct {
	Elapsed   time.Duration `json:"elapsed"`
	LatencyMs float64       `json:"latency_ms"`
}

// Metrics is the thread-safe accumulator for one operation across all
// workers of a trial. Samples are kept in insertion order and never removed.
type Metrics struct {
	operation string

	totalOps   atomic.Int64
	errorCount atomic.Int64
	duration   atomic.Int64

	mu      sync.Mutex
	samples []Sample
}

// NewMetrics creates an empty accumulator for the named operation.
func NewMetrics(operation string) *Metrics {
	return &Metrics{
		operation: operation,
		samples:   make([]Sample, 0, 1024),
	}
}

// Operation returns the operation name.
func (m *Metrics) Operation() string {
	return m.operation
}

// Record appends a successful sample.
func (m *Metrics) Record(elapsed time.Duration, latencyMs float64) {
	m.mu.Lock()
	m.samples = append(m.samples, Sample{Elapsed: elapsed, LatencyMs: latencyMs})
	m.mu.Unlock()
	m.totalOps.Add(1)
}

// RecordError counts a failed iteration. No sample is appended.
func (m *Metrics) RecordError() {
	m.errorCount.Add(1)
}

// TotalOps returns the number of successful operations recorded.
func (m *Metrics) TotalOps() int64 {
	return m.totalOps.Load()
}

// ErrorCount returns the number of failed iterations recorded.
func (m *Metrics) ErrorCount() int64 {
	return m.errorCount.Load()
}

// SetDuration records how long the trial ran for reporting purposes.
func (m *Metrics) SetDuration(d time.Duration) {
	m.duration.Store(int64(d))
}

// Duration returns the recorded trial duration, or 0 if unset.
func (m *Metrics) Duration() time.Duration {
	return time.Duration(m.duration.Load())
}

// Window returns [from, to] as fractions of the configured trial duration.
// A non-positive configured duration falls back to the recorded one.
func (m *Metrics) Window(configured time.Duration, from, to float64) Window {
	d := configured
	if d <= 0 {
		d = m.Duration()
	}
	return FractionWindow(d, from, to)
}

// RecordedWindow returns [from, to] as fractions of the recorded duration,
// so an exhausted trial is windowed over the time it actually ran. It falls
// back to configured when no duration was recorded.
func (m *Metrics) RecordedWindow(configured time.Duration, from, to float64) Window {
	d := m.Duration()
	if d <= 0 {
		d = configured
	}
	return FractionWindow(d, from, to)
}

// Samples returns a copy of the recorded samples in insertion order.
func (m *Metrics) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Stats computes statistics over the samples that fall inside w.
// ok is false when the window holds no samples.
func (m *Metrics) Stats(w Window) (stats Stats, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Compute(m.samples, w)
}

// Snapshot is the serializable, immutable form of Metrics.
type Snapshot struct {
	Operation  string        `json:"operation"`
	TotalOps   int64         `json:"total_ops"`
	ErrorCount int64         `json:"error_count"`
	Duration   time.Duration `json:"duration"`
	Samples    []Sample      `json:"samples"`
}

// Snapshot copies the current state. Call it after all workers joined.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Operation:  m.operation,
		TotalOps:   m.TotalOps(),
		ErrorCount: m.ErrorCount(),
		Duration:   m.Duration(),
		Samples:    m.Samples(),
	}
}

// FromSnapshot rebuilds an accumulator, e.g. from a saved sample dump.
func FromSnapshot(s Snapshot) *Metrics {
	m := &Metrics{
		operation: s.Operation,
		samples:   make([]Sample, len(s.Samples)),
	}
	copy(m.samples, s.Samples)
	m.totalOps.Store(s.TotalOps)
	m.errorCount.Store(s.ErrorCount)
	m.duration.Store(int64(s.Duration))
	return m
}
