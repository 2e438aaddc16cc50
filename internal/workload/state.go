package workload

import (
	"sync/atomic"
	"time"
)

// State is shared by every worker of one trial. A fresh State is created
// per (operation, mode) trial and passed to the workers explicitly.
type State struct {
	total int64
	start time.Time

	// remaining counts rows not yet claimed by a finite operation.
	remaining atomic.Int64

	// actualDurationMs is 0 until a worker records exhaustion.
	actualDurationMs atomic.Int64

	insertCursor      atomic.Int64
	deleteCursor      atomic.Int64
	deleteRangeCursor atomic.Int64
}

// NewState creates the state for a key space of total rows, starting the
// trial clock now.
func NewState(total int64) *State {
	s := &State{total: total, start: time.Now()}
	s.remaining.Store(total)
	return s
}

// Total returns the key space size.
func (s *State) Total() int64 {
	return s.total
}

// Start returns when the trial started.
func (s *State) Start() time.Time {
	return s.start
}

// Elapsed returns the time since the trial started.
func (s *State) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Remaining returns the unclaimed finite units.
func (s *State) Remaining() int64 {
	return s.remaining.Load()
}

// NextInsert returns the next insert sequence number, starting at 0.
func (s *State) NextInsert() int64 {
	return s.insertCursor.Add(1) - 1
}

// ClaimDelete claims the next id for a point delete. ok is false once the
// cursor has passed the key space; such claims change nothing.
func (s *State) ClaimDelete() (id int64, ok bool) {
	id = s.deleteCursor.Add(1) - 1
	if id >= s.total {
		return id, false
	}
	s.remaining.Add(-1)
	return id, true
}

// ClaimDeleteRange claims the next batch start for a range delete.
func (s *State) ClaimDeleteRange(batch int64) (start int64, ok bool) {
	start = s.deleteRangeCursor.Add(batch) - batch
	if start >= s.total {
		return start, false
	}
	n := batch
	if start+n > s.total {
		n = s.total - start
	}
	s.remaining.Add(-n)
	return start, true
}

// MarkExhausted records elapsed as the actual trial duration if no worker
// has recorded one yet and the finite units are used up. It returns true
// for the single caller whose value was stored.
func (s *State) MarkExhausted(elapsed time.Duration) bool {
	if s.remaining.Load() > 0 {
		return false
	}
	ms := elapsed.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return s.actualDurationMs.CompareAndSwap(0, ms)
}

// ActualDuration returns the recorded exhaustion time, if any.
func (s *State) ActualDuration() (time.Duration, bool) {
	ms := s.actualDurationMs.Load()
	if ms == 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// ReportedDuration is the duration used for throughput: the exhaustion time
// when the finite units ran out, otherwise elapsed.
func (s *State) ReportedDuration(elapsed time.Duration) time.Duration {
	if actual, ok := s.ActualDuration(); ok {
		return actual
	}
	return elapsed
}
