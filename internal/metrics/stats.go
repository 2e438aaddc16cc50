package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Window is the inclusive time range [Start, End] relative to trial start.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// DefaultWindow is the middle half of a trial, dropping ramp-up and ramp-down.
func DefaultWindow(duration time.Duration) Window {
	return Window{Start: duration / 4, End: duration * 3 / 4}
}

// FractionWindow returns [from*duration, to*duration].
func FractionWindow(duration time.Duration, from, to float64) Window {
	return Window{
		Start: time.Duration(float64(duration) * from),
		End:   time.Duration(float64(duration) * to),
	}
}

// Contains reports whether elapsed lies inside the window, bounds included.
func (w Window) Contains(elapsed time.Duration) bool {
	return elapsed >= w.Start && elapsed <= w.End
}

// Seconds is the window length in seconds.
func (w Window) Seconds() float64 {
	return (w.End - w.Start).Seconds()
}

func (w Window) String() string {
	return fmt.Sprintf("%dms - %dms", w.Start.Milliseconds(), w.End.Milliseconds())
}

// LatencyStats summarizes latencies in milliseconds.
type LatencyStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Stats is the result of a windowed computation.
type Stats struct {
	Count      int          `json:"count"`
	Latency    LatencyStats `json:"latency"`
	Throughput float64      `json:"throughput"`
}

// Compute filters samples to w and summarizes them. ok is false when no
// sample falls inside the window; callers must not treat that as zero.
func Compute(samples []Sample, w Window) (stats Stats, ok bool) {
	latencies := make([]float64, 0, len(samples))
	for _, s := range samples {
		if w.Contains(s.Elapsed) {
			latencies = append(latencies, s.LatencyMs)
		}
	}
	if len(latencies) == 0 {
		return Stats{}, false
	}

	sort.Float64s(latencies)

	stats.Count = len(latencies)
	stats.Latency = LatencyStats{
		Mean:   mean(latencies),
		Median: median(latencies),
		P95:    Percentile(latencies, 95),
		P99:    Percentile(latencies, 99),
		Min:    latencies[0],
		Max:    latencies[len(latencies)-1],
	}
	if secs := w.Seconds(); secs > 0 {
		stats.Throughput = float64(len(latencies)) / secs
	}
	return stats, true
}

// Percentile returns the nearest-rank value at index round(p/100*(n-1)) of
// an ascending slice.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Round(p / 100 * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
