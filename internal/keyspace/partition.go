package keyspace

import "fmt"

// ThreadRange is the half-open id range [Start, End) owned by one worker.
type ThreadRange struct {
	Start int64
	End   int64
}

// Len returns the number of ids in the range.
func (r ThreadRange) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether id lies in the range.
func (r ThreadRange) Contains(id int64) bool {
	return id >= r.Start && id < r.End
}

func (r ThreadRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Partition returns the sub-range of [0, total) assigned to worker index of
// count workers. Every worker gets total/count ids; the last one also takes
// the remainder. When total < count the leading ranges are empty, which
// callers reject up front.
func Partition(index, count int, total int64) ThreadRange {
	if count < 1 {
		count = 1
	}
	chunk := total / int64(count)
	start := int64(index) * chunk
	end := start + chunk
	if index == count-1 {
		end = total
	}
	return ThreadRange{Start: start, End: end}
}

// PartitionAll returns the ranges for every worker in index order.
func PartitionAll(count int, total int64) []ThreadRange {
	ranges := make([]ThreadRange, count)
	for i := 0; i < count; i++ {
		ranges[i] = Partition(i, count, total)
	}
	return ranges
}
