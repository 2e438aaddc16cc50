package metrics

import (
	"bytes"
	"math"
	"sync"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute_FiveSamples(t *testing.T) {
	samples := []Sample{
		{Elapsed: 1 * time.Second, LatencyMs: 50},
		{Elapsed: 2 * time.Second, LatencyMs: 10},
		{Elapsed: 3 * time.Second, LatencyMs: 40},
		{Elapsed: 4 * time.Second, LatencyMs: 20},
		{Elapsed: 5 * time.Second, LatencyMs: 30},
	}

	stats, ok := Compute(samples, Window{Start: 0, End: 10 * time.Second})
	if !ok {
		t.Fatal("expected data in window")
	}
	if stats.Latency.Median != 30 || stats.Latency.Mean != 30 {
		t.Errorf("median/mean: got %v/%v, want 30/30", stats.Latency.Median, stats.Latency.Mean)
	}
	if stats.Latency.Min != 10 || stats.Latency.Max != 50 {
		t.Errorf("min/max: got %v/%v, want 10/50", stats.Latency.Min, stats.Latency.Max)
	}
	// round(0.95*4) = 4, round(0.99*4) = 4
	if stats.Latency.P95 != 50 || stats.Latency.P99 != 50 {
		t.Errorf("p95/p99: got %v/%v, want 50/50", stats.Latency.P95, stats.Latency.P99)
	}
	if !approx(stats.Throughput, 0.5) {
		t.Errorf("throughput: got %v, want 0.5", stats.Throughput)
	}
}

func TestCompute_EmptyWindow(t *testing.T) {
	samples := []Sample{{Elapsed: 20 * time.Second, LatencyMs: 5}}
	if _, ok := Compute(samples, Window{Start: 0, End: 10 * time.Second}); ok {
		t.Fatal("expected no data for a window without samples")
	}
	if _, ok := Compute(nil, Window{Start: 0, End: time.Second}); ok {
		t.Fatal("expected no data for no samples")
	}
}

func TestCompute_WindowBoundsInclusive(t *testing.T) {
	samples := []Sample{
		{Elapsed: 999 * time.Millisecond, LatencyMs: 100},
		{Elapsed: 1 * time.Second, LatencyMs: 1},
		{Elapsed: 2 * time.Second, LatencyMs: 3},
		{Elapsed: 2001 * time.Millisecond, LatencyMs: 100},
	}

	stats, ok := Compute(samples, Window{Start: time.Second, End: 2 * time.Second})
	if !ok {
		t.Fatal("expected data in window")
	}
	if stats.Count != 2 {
		t.Fatalf("count: got %d, want 2", stats.Count)
	}
	if stats.Latency.Median != 2 {
		t.Errorf("median of even count: got %v, want 2", stats.Latency.Median)
	}
	if stats.Throughput != 2 {
		t.Errorf("throughput: got %v, want 2", stats.Throughput)
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := make([]float64, 101)
	for i := range sorted {
		sorted[i] = float64(i)
	}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 0},
		{50, 50},
		{95, 95},
		{99, 99},
		{100, 100},
	}
	for _, tt := range tests {
		if got := Percentile(sorted, tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if Percentile(nil, 95) != 0 {
		t.Error("percentile of empty slice should be 0")
	}
}

func TestDefaultWindow(t *testing.T) {
	w := DefaultWindow(40 * time.Second)
	if w.Start != 10*time.Second || w.End != 30*time.Second {
		t.Fatalf("got %v, want 10s-30s", w)
	}
	f := FractionWindow(40*time.Second, 0.25, 0.75)
	if f != w {
		t.Fatalf("FractionWindow(0.25, 0.75) = %v, want %v", f, w)
	}
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := NewMetrics("insert")
	var wg sync.WaitGroup
	numGoroutines := 16
	perGoroutine := 500

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Record(time.Duration(j)*time.Millisecond, float64(id))
				if j%10 == 0 {
					m.RecordError()
				}
			}
		}(i)
	}
	wg.Wait()

	want := int64(numGoroutines * perGoroutine)
	if m.TotalOps() != want {
		t.Errorf("total ops: got %d, want %d", m.TotalOps(), want)
	}
	if got := len(m.Samples()); int64(got) != want {
		t.Errorf("samples: got %d, want %d", got, want)
	}
	if m.ErrorCount() != int64(numGoroutines*perGoroutine/10) {
		t.Errorf("errors: got %d, want %d", m.ErrorCount(), numGoroutines*perGoroutine/10)
	}
}

func TestMetrics_SamplesIsCopy(t *testing.T) {
	m := NewMetrics("point_update")
	m.Record(time.Second, 1.5)

	samples := m.Samples()
	samples[0].LatencyMs = 99

	if m.Samples()[0].LatencyMs != 1.5 {
		t.Fatal("Samples must return a copy")
	}
}

func TestDump_RoundTripKeepsStats(t *testing.T) {
	m := NewMetrics("range_delete")
	for i := 1; i <= 10; i++ {
		m.Record(time.Duration(i)*time.Second, float64(i))
	}
	m.RecordError()

	result := NewBenchmarkResult("optimistic")
	result.Add(m)

	var buf bytes.Buffer
	dump := Dump{RunID: "run-1", Duration: 12 * time.Second, Results: []ResultSnapshot{result.Snapshot()}}
	if err := WriteDump(&buf, dump); err != nil {
		t.Fatalf("WriteDump failed: %v", err)
	}

	decoded, err := ReadDump(&buf)
	if err != nil {
		t.Fatalf("ReadDump failed: %v", err)
	}
	restored := decoded.Results[0].Restore()
	rm := restored.Lookup("range_delete")
	if rm == nil {
		t.Fatal("restored result is missing range_delete")
	}
	if rm.ErrorCount() != 1 || rm.TotalOps() != 10 {
		t.Fatalf("counters: got ops=%d errors=%d", rm.TotalOps(), rm.ErrorCount())
	}

	w := DefaultWindow(decoded.Duration)
	want, _ := m.Stats(w)
	got, ok := rm.Stats(w)
	if !ok || got != want {
		t.Fatalf("stats after restore: got %+v, want %+v", got, want)
	}
}

func TestReadDump_Garbage(t *testing.T) {
	if _, err := ReadDump(bytes.NewReader([]byte("not snappy"))); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}

func TestMetrics_WindowUsesConfiguredDuration(t *testing.T) {
	m := NewMetrics("point_delete")

	w := m.RecordedWindow(40*time.Second, 0.25, 0.75)
	if w.Start != 10*time.Second || w.End != 30*time.Second {
		t.Fatalf("recorded window without a recorded duration: got %s", w)
	}

	m.SetDuration(4 * time.Second)
	w = m.Window(40*time.Second, 0.25, 0.75)
	if w.Start != 10*time.Second || w.End != 30*time.Second {
		t.Fatalf("configured window: got %s", w)
	}

	w = m.Window(0, 0.25, 0.75)
	if w.Start != time.Second || w.End != 3*time.Second {
		t.Fatalf("window without a configured duration: got %s", w)
	}

	w = m.RecordedWindow(40*time.Second, 0.25, 0.75)
	if w.Start != time.Second || w.End != 3*time.Second {
		t.Fatalf("recorded window: got %s", w)
	}

	if FromSnapshot(m.Snapshot()).Duration() != 4*time.Second {
		t.Fatal("duration lost in snapshot")
	}
}
