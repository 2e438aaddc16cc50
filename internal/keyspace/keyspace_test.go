package keyspace

import "testing"

func TestScatter_KnownValues(t *testing.T) {
	tests := []struct {
		id, rangeSize, want int64
	}{
		{0, 10, 0},
		{1, 10, 9},  // 16777619 % 10
		{2, 10, 8},  // 33555238 % 10
		{1, 1000, 619},
		{3, 7, (3 * 16777619) % 7},
		{-1, 10, 1}, // negative remainder folded back
	}

	for _, tt := range tests {
		if got := Scatter(tt.id, tt.rangeSize); got != tt.want {
			t.Errorf("Scatter(%d, %d) = %d, want %d", tt.id, tt.rangeSize, got, tt.want)
		}
	}
}

func TestScatter_NoOverflowAtInsertKeyspace(t *testing.T) {
	const rangeSize = 0x7fffffff
	for _, id := range []int64{rangeSize - 1, rangeSize - 2, 1 << 30} {
		s := Scatter(id, rangeSize)
		if s < 0 || s >= rangeSize {
			t.Fatalf("Scatter(%d) = %d out of range", id, s)
		}
	}
}

func TestScatter_NonCoprimeRangeCollides(t *testing.T) {
	rangeSize := 2 * Multiplier
	if Bijective(rangeSize) {
		t.Fatal("range sharing a factor with the multiplier must not be bijective")
	}
	if Scatter(0, rangeSize) != Scatter(2, rangeSize) {
		t.Fatal("expected ids 0 and 2 to collide when R = 2*Multiplier")
	}
}

func TestScatterUnbounded_DistinctRegions(t *testing.T) {
	const rangeSize = 1000
	ids := []int64{0, rangeSize, 2 * rangeSize}

	seen := make(map[int64]bool)
	regions := make(map[int64]bool)
	for _, id := range ids {
		s := ScatterUnbounded(id, rangeSize)
		if seen[s] {
			t.Fatalf("scattered id %d collides", s)
		}
		seen[s] = true
		regions[s/rangeSize] = true
	}
	if len(regions) != len(ids) {
		t.Fatalf("expected %d distinct regions, got %d", len(ids), len(regions))
	}
}

func TestScatterUnbounded_MatchesScatterInFirstRegion(t *testing.T) {
	for id := int64(0); id < 100; id++ {
		if ScatterUnbounded(id, 100) != Scatter(id, 100) {
			t.Fatalf("region 0 must match bounded scatter at id %d", id)
		}
	}
}

func TestPartition_LastWorkerAbsorbsRemainder(t *testing.T) {
	ranges := PartitionAll(3, 10)
	want := []ThreadRange{{0, 3}, {3, 6}, {6, 10}}
	for i, r := range ranges {
		if r != want[i] {
			t.Errorf("worker %d: got %v, want %v", i, r, want[i])
		}
	}
}

func TestPartition_SingleWorker(t *testing.T) {
	r := Partition(0, 1, 42)
	if r.Start != 0 || r.End != 42 {
		t.Fatalf("got %v, want [0, 42)", r)
	}
	if !r.Contains(41) || r.Contains(42) {
		t.Fatal("Contains must treat the range as half-open")
	}
}

func TestPartition_FewerRowsThanWorkers(t *testing.T) {
	ranges := PartitionAll(4, 2)
	for i := 0; i < 3; i++ {
		if ranges[i].Len() != 0 {
			t.Errorf("worker %d: expected empty range, got %v", i, ranges[i])
		}
	}
	if ranges[3] != (ThreadRange{0, 2}) {
		t.Errorf("last worker: got %v, want [0, 2)", ranges[3])
	}
}
