// Package workload drives concurrent workers that issue one kind of
// data-manipulation operation against the store for the length of a trial.
package workload

import (
	"fmt"
	"strings"
)

// Operation names one kind of benchmarked statement.
type Operation string

const (
	OpInsert          Operation = "insert"
	OpPointUpdate     Operation = "point_update"
	OpRangeUpdate     Operation = "range_update"
	OpPointDelete     Operation = "point_delete"
	OpRangeDelete     Operation = "range_delete"
	OpContendedUpdate Operation = "contended_update"
)

// DefaultOperations is the canonical trial order.
var DefaultOperations = []Operation{
	OpInsert,
	OpPointUpdate,
	OpRangeUpdate,
	OpPointDelete,
	OpRangeDelete,
}

// ParseOperation parses an operation name.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpInsert, OpPointUpdate, OpRangeUpdate, OpPointDelete, OpRangeDelete, OpContendedUpdate:
		return op, nil
	default:
		return "", fmt.Errorf("workload: unknown operation %q", s)
	}
}

// ParseOperations parses a list of names, rejecting duplicates.
func ParseOperations(names []string) ([]Operation, error) {
	ops := make([]Operation, 0, len(names))
	seen := make(map[Operation]bool, len(names))
	for _, name := range names {
		op, err := ParseOperation(name)
		if err != nil {
			return nil, err
		}
		if seen[op] {
			return nil, fmt.Errorf("workload: operation %q listed twice", op)
		}
		seen[op] = true
		ops = append(ops, op)
	}
	return ops, nil
}

// Finite reports whether the operation consumes rows, so a trial can end
// before its duration when the rows run out.
func (o Operation) Finite() bool {
	return o == OpPointDelete || o == OpRangeDelete
}

// NeedsRows reports whether the table must be loaded before the trial.
// Inserts start from an empty table.
func (o Operation) NeedsRows() bool {
	return o != OpInsert
}

func (o Operation) String() string {
	return string(o)
}
