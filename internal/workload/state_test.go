package workload

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestState_ClaimDeleteConcurrent(t *testing.T) {
	const total = 500
	s := NewState(total)

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, ok := s.ClaimDelete()
				if !ok {
					continue
				}
				mu.Lock()
				claimed[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("id %d claimed %d times", id, n)
		}
		if id < 0 || id >= total {
			t.Errorf("id %d outside key space", id)
		}
	}
	if r := s.Remaining(); r != 0 {
		t.Errorf("expected remaining 0, got %d", r)
	}
}

func TestState_ClaimDeleteRangePartialBatch(t *testing.T) {
	s := NewState(10)

	var starts []int64
	for {
		start, ok := s.ClaimDeleteRange(3)
		if !ok {
			break
		}
		starts = append(starts, start)
	}

	want := []int64{0, 3, 6, 9}
	if len(starts) != len(want) {
		t.Fatalf("expected starts %v, got %v", want, starts)
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Errorf("start %d: expected %d, got %d", i, want[i], starts[i])
		}
	}
	if r := s.Remaining(); r != 0 {
		t.Errorf("expected remaining 0, got %d", r)
	}

	// exhausted claims leave remaining alone
	if _, ok := s.ClaimDeleteRange(3); ok {
		t.Error("claim after exhaustion should fail")
	}
	if r := s.Remaining(); r != 0 {
		t.Errorf("expected remaining 0 after failed claim, got %d", r)
	}
}

func TestState_NextInsertSequence(t *testing.T) {
	s := NewState(0)
	for want := int64(0); want < 5; want++ {
		if got := s.NextInsert(); got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestState_MarkExhausted(t *testing.T) {
	s := NewState(2)

	if s.MarkExhausted(10 * time.Millisecond) {
		t.Fatal("should not mark exhausted while rows remain")
	}
	if _, ok := s.ActualDuration(); ok {
		t.Fatal("actual duration should be unset")
	}

	s.ClaimDelete()
	s.ClaimDelete()

	if !s.MarkExhausted(1500 * time.Millisecond) {
		t.Fatal("first mark after exhaustion should win")
	}
	if s.MarkExhausted(9 * time.Second) {
		t.Fatal("second mark should lose")
	}

	d, ok := s.ActualDuration()
	if !ok || d != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v (ok=%v)", d, ok)
	}
	if got := s.ReportedDuration(30 * time.Second); got != 1500*time.Millisecond {
		t.Errorf("reported duration should use the actual duration, got %v", got)
	}
}

func TestState_MarkExhaustedSubMillisecond(t *testing.T) {
	s := NewState(1)
	s.ClaimDelete()

	if !s.MarkExhausted(200 * time.Microsecond) {
		t.Fatal("mark should succeed")
	}
	d, ok := s.ActualDuration()
	if !ok || d != time.Millisecond {
		t.Fatalf("expected 1ms floor, got %v (ok=%v)", d, ok)
	}
}

func TestState_ReportedDurationFallsBackToElapsed(t *testing.T) {
	s := NewState(100)
	if got := s.ReportedDuration(7 * time.Second); got != 7*time.Second {
		t.Errorf("expected elapsed, got %v", got)
	}
}

func TestState_RangeClaimsCoverKeySpace_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("range claims tile [0, total) exactly once", prop.ForAll(
		func(total int64, batch int64) bool {
			s := NewState(total)
			var next int64
			for {
				start, ok := s.ClaimDeleteRange(batch)
				if !ok {
					break
				}
				if start != next {
					return false
				}
				next = start + batch
			}
			return next >= total && next-batch < total && s.Remaining() == 0
		},
		gen.Int64Range(1, 2000),
		gen.Int64Range(1, 16),
	))

	properties.Property("point claims succeed exactly total times", prop.ForAll(
		func(total int64, extra int) bool {
			s := NewState(total)
			var ok int64
			for i := int64(0); i < total+int64(extra); i++ {
				if _, claimed := s.ClaimDelete(); claimed {
					ok++
				}
			}
			return ok == total && s.Remaining() == 0
		},
		gen.Int64Range(0, 1000),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
