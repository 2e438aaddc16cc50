// Package observability tracks benchmark progress for live inspection:
// per-trial summaries kept in memory and Prometheus collectors fed from the
// worker hot path.
package observability

import (
	"sort"
	"sync"
	"time"
)

// TrialStats keeps the summary of every finished trial, keyed by
// (operation, mode). A rerun of the same pair replaces the old entry.
type TrialStats struct {
	mu     sync.RWMutex
	trials map[trialKey]*TrialSummary
	window time.Duration
}

type trialKey struct {
	operation string
	mode      string
}

// TrialSummary is the outcome of one trial.
type TrialSummary struct {
	Operation  string    `json:"operation"`
	Mode       string    `json:"mode"`
	TotalOps   int64     `json:"total_ops"`
	Errors     int64     `json:"errors"`
	Throughput float64   `json:"throughput"`
	MeanMs     float64   `json:"mean_ms"`
	P95Ms      float64   `json:"p95_ms"`
	Elapsed    string    `json:"elapsed"`
	Exhausted  bool      `json:"exhausted"`
	Finished   time.Time `json:"finished"`

	// ErrorCategories counts failures by category, e.g. "EXECUTION" → 3.
	ErrorCategories map[string]int64 `json:"error_categories,omitempty"`
}

// NewTrialStats creates a tracker. window bounds how long a summary is kept
// by Prune; zero keeps everything.
func NewTrialStats(window time.Duration) *TrialStats {
	return &TrialStats{
		trials: make(map[trialKey]*TrialSummary),
		window: window,
	}
}

// RecordTrial stores s, stamping Finished if unset.
func (ts *TrialStats) RecordTrial(s TrialSummary) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if s.Finished.IsZero() {
		s.Finished = time.Now()
	}
	k := trialKey{operation: s.Operation, mode: s.Mode}
	if prev, ok := ts.trials[k]; ok && s.ErrorCategories == nil {
		s.ErrorCategories = prev.ErrorCategories
	}
	stored := s
	stored.ErrorCategories = copyCounts(s.ErrorCategories)
	ts.trials[k] = &stored
}

// RecordError bumps the error category count of a trial that may still be
// running.
func (ts *TrialStats) RecordError(operation, mode, category string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	k := trialKey{operation: operation, mode: mode}
	s, ok := ts.trials[k]
	if !ok {
		s = &TrialSummary{Operation: operation, Mode: mode}
		ts.trials[k] = s
	}
	if s.ErrorCategories == nil {
		s.ErrorCategories = make(map[string]int64)
	}
	s.ErrorCategories[category]++
}

// Trials returns copies of all summaries in finish order; unfinished
// entries come last.
func (ts *TrialStats) Trials() []TrialSummary {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]TrialSummary, 0, len(ts.trials))
	for _, s := range ts.trials {
		c := *s
		c.ErrorCategories = copyCounts(s.ErrorCategories)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Finished, out[j].Finished
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		case out[i].Operation != out[j].Operation:
			return out[i].Operation < out[j].Operation
		default:
			return out[i].Mode < out[j].Mode
		}
	})
	return out
}

// Lookup returns a copy of one summary.
func (ts *TrialStats) Lookup(operation, mode string) (TrialSummary, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	s, ok := ts.trials[trialKey{operation: operation, mode: mode}]
	if !ok {
		return TrialSummary{}, false
	}
	c := *s
	c.ErrorCategories = copyCounts(s.ErrorCategories)
	return c, true
}

// Prune drops finished summaries older than the window.
func (ts *TrialStats) Prune() {
	if ts.window <= 0 {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	threshold := time.Now().Add(-ts.window)
	for k, s := range ts.trials {
		if !s.Finished.IsZero() && s.Finished.Before(threshold) {
			delete(ts.trials, k)
		}
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	c := make(map[string]int64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
