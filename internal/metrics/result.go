package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
)

// BenchmarkResult holds one Metrics per operation for one mode, in the
// order the operations ran.
type BenchmarkResult struct {
	Mode       string
	Operations []*Metrics
}

// NewBenchmarkResult creates an empty result for mode.
func NewBenchmarkResult(mode string) *BenchmarkResult {
	return &BenchmarkResult{Mode: mode}
}

// Add appends the finalized metrics of one trial.
func (r *BenchmarkResult) Add(m *Metrics) {
	r.Operations = append(r.Operations, m)
}

// Lookup returns the metrics for operation, or nil.
func (r *BenchmarkResult) Lookup(operation string) *Metrics {
	for _, m := range r.Operations {
		if m.Operation() == operation {
			return m
		}
	}
	return nil
}

// Dump is the persisted form of a benchmark session. It keeps every sample
// so a report can be recomputed later with a different window.
type Dump struct {
	RunID     string           `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	Duration  time.Duration    `json:"duration"`
	Results   []ResultSnapshot `json:"results"`
}

// ResultSnapshot is the serializable form of BenchmarkResult.
type ResultSnapshot struct {
	Mode       string     `json:"mode"`
	Operations []Snapshot `json:"operations"`
}

// Snapshot copies r into its serializable form.
func (r *BenchmarkResult) Snapshot() ResultSnapshot {
	s := ResultSnapshot{Mode: r.Mode, Operations: make([]Snapshot, 0, len(r.Operations))}
	for _, m := range r.Operations {
		s.Operations = append(s.Operations, m.Snapshot())
	}
	return s
}

// Restore rebuilds the BenchmarkResult.
func (s ResultSnapshot) Restore() *BenchmarkResult {
	r := NewBenchmarkResult(s.Mode)
	for _, op := range s.Operations {
		r.Add(FromSnapshot(op))
	}
	return r
}

// WriteDump writes d as snappy-framed JSON.
func WriteDump(w io.Writer, d Dump) error {
	sw := snappy.NewBufferedWriter(w)
	if err := json.NewEncoder(sw).Encode(d); err != nil {
		sw.Close()
		return fmt.Errorf("metrics: failed to encode dump: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("metrics: failed to flush dump: %w", err)
	}
	return nil
}

// ReadDump decodes a dump written by WriteDump.
func ReadDump(r io.Reader) (Dump, error) {
	var d Dump
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&d); err != nil {
		return Dump{}, fmt.Errorf("metrics: failed to decode dump: %w", err)
	}
	return d, nil
}
