package workload

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/keyspace"
	"github.com/dmlbench/dmlbench/internal/store"
)

// Outcome classifies an iteration that did not fail.
type Outcome int

const (
	// Done means one unit of work reached the store.
	Done Outcome = iota
	// Skipped means a finite operation found nothing left to claim.
	Skipped
)

// insertSecondaryMod derives k1 for inserted rows.
const insertSecondaryMod = 1000

// Env is everything an executor needs besides the session. Each worker
// owns one Env; only State is shared.
type Env struct {
	Queries store.Queries
	State   *State
	Range   keyspace.ThreadRange
	Rand    *rand.Rand

	// Rows is the loaded key space that deletes consume.
	Rows int64

	// InsertKeyspace is the scatter range for inserted ids.
	InsertKeyspace int64

	RangeUpdateSpan  int64
	RangeDeleteBatch int64
	Scatter          bool

	// Now is the clock used for update payloads.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// randomID picks an id uniformly from [lo, hi).
func (e *Env) randomID(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + e.Rand.Int63n(hi-lo)
}

func (e *Env) scatter(id, rangeSize int64) int64 {
	if !e.Scatter {
		return id
	}
	return keyspace.Scatter(id, rangeSize)
}

// Executor performs one unit of work for an operation.
type Executor func(ctx context.Context, sess store.Execer, env *Env) (Outcome, error)

// ExecutorFor returns the executor for op.
func ExecutorFor(op Operation) (Executor, error) {
	switch op {
	case OpInsert:
		return Insert, nil
	case OpPointUpdate:
		return PointUpdate, nil
	case OpRangeUpdate:
		return RangeUpdate, nil
	case OpPointDelete:
		return PointDelete, nil
	case OpRangeDelete:
		return RangeDelete, nil
	case OpContendedUpdate:
		return ContendedUpdate, nil
	default:
		return nil, fmt.Errorf("workload: no executor for %q", op)
	}
}

// Insert writes one new row keyed by the next scattered insert id. Ids from
// successive regions of the insert key space never collide.
func Insert(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	seq := env.State.NextInsert()
	id := seq
	if env.Scatter {
		id = keyspace.ScatterUnbounded(seq, env.InsertKeyspace)
	}
	_, err := sess.Exec(ctx, env.Queries.Insert,
		id, id%insertSecondaryMod, "key-"+strconv.FormatInt(id, 10), "new-value")
	return Done, err
}

// PointUpdate rewrites v1 of one random row in the worker's range.
func PointUpdate(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	if env.Range.Len() == 0 {
		return Skipped, nil
	}
	id := env.randomID(env.Range.Start, env.Range.End)
	_, err := sess.Exec(ctx, env.Queries.PointUpdate, timestampValue(env.now()), id)
	return Done, err
}

// RangeUpdate rewrites v1 of the rows [start, start+span] where start is
// random in [range.start, range.end-span).
func RangeUpdate(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	if env.Range.Len() == 0 {
		return Skipped, nil
	}
	span := env.RangeUpdateSpan
	start := env.randomID(env.Range.Start, env.Range.End-span)
	_, err := sess.Exec(ctx, env.Queries.RangeUpdate, timestampValue(env.now()), start, start+span)
	return Done, err
}

// PointDelete claims the next id and deletes the row whose k1 is its
// scattered position. Deleting nothing is a consistency error.
func PointDelete(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	id, ok := env.State.ClaimDelete()
	if !ok {
		return Skipped, nil
	}
	k1 := env.scatter(id, env.Rows)
	n, err := sess.Exec(ctx, env.Queries.PointDelete, k1)
	if err != nil {
		return Done, err
	}
	if n == 0 {
		return Done, benchErrors.NewConsistencyError(fmt.Sprintf("no rows deleted for k1=%d", k1))
	}
	return Done, nil
}

// RangeDelete claims the next batch of k1 values and deletes them.
// Deleting nothing is a consistency error.
func RangeDelete(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	batch := env.RangeDeleteBatch
	start, ok := env.State.ClaimDeleteRange(batch)
	if !ok {
		return Skipped, nil
	}
	end := start + batch - 1
	n, err := sess.Exec(ctx, env.Queries.RangeDelete, start, end)
	if err != nil {
		return Done, err
	}
	if n == 0 {
		return Done, benchErrors.NewConsistencyError(fmt.Sprintf("no rows deleted for k1 range %d to %d", start, end))
	}
	return Done, nil
}

// ContendedUpdate locks one random row of the worker's range and updates it
// inside a single transaction.
func ContendedUpdate(ctx context.Context, sess store.Execer, env *Env) (Outcome, error) {
	if env.Range.Len() == 0 {
		return Skipped, nil
	}
	tx, ok := sess.(transactor)
	if !ok {
		return Done, benchErrors.NewInternalError("workload: session does not support transactions", nil)
	}
	id := env.randomID(env.Range.Start, env.Range.End)
	err := tx.Transact(ctx, func(tx store.Execer) error {
		if _, err := tx.Exec(ctx, env.Queries.LockRow, id); err != nil {
			return err
		}
		n, err := tx.Exec(ctx, env.Queries.BumpRow, timestampValue(env.now()), id)
		if err != nil {
			return err
		}
		if n == 0 {
			return benchErrors.NewConsistencyError(fmt.Sprintf("no rows updated for id=%d", id))
		}
		return nil
	})
	return Done, err
}

type transactor interface {
	Transact(ctx context.Context, fn func(tx store.Execer) error) error
}

func timestampValue(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
