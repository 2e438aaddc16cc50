// Package store is the benchmark's view of the transactional row store:
// sessions handed out by a bounded pool, parameterized statements that
// return affected-row counts, and the per-driver dialect that knows how to
// create the table, load it, and switch concurrency-control modes.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the concurrency-control mode a trial runs under.
type Mode string

const (
	ModeOptimistic  Mode = "optimistic"
	ModePessimistic Mode = "pessimistic"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOptimistic:
		return ModeOptimistic, nil
	case ModePessimistic:
		return ModePessimistic, nil
	default:
		return "", fmt.Errorf("store: unknown mode %q (must be optimistic or pessimistic)", s)
	}
}

// Execer runs one parameterized statement and returns the affected rows.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Session is one connection checked out of the pool. It must be released.
type Session interface {
	Execer

	// Transact runs fn inside an explicit transaction opened in the
	// session's mode, committing on nil and rolling back otherwise.
	Transact(ctx context.Context, fn func(tx Execer) error) error

	// Release returns the connection to the pool.
	Release()
}

// Store hands out sessions and applies run-wide settings.
type Store interface {
	// Acquire checks out a session, waiting at most the configured
	// acquire timeout.
	Acquire(ctx context.Context) (Session, error)

	// ApplyMode switches the store to mode for subsequent sessions.
	ApplyMode(ctx context.Context, mode Mode) error

	// Dialect returns the SQL dialect of the store.
	Dialect() Dialect

	// Close releases all resources.
	Close() error
}
