package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
)

// Pool hands out dedicated connections from a *sql.DB with a bounded
// capacity and an acquisition timeout.
type Pool struct {
	mu sync.RWMutex

	db *sql.DB

	// maxConnections caps open connections
	maxConnections int

	// acquireTimeout bounds how long Get waits for a free connection
	acquireTimeout time.Duration

	// active is the number of connections currently checked out
	active int

	acquired int64
	timeouts int64
	failures int64

	// releaseFailures counts connections that failed to close on Release
	releaseFailures int64

	// closed indicates if the pool has been closed
	closed bool
}

// PoolConfig holds configuration for the connection pool.
type PoolConfig struct {
	// MaxConnections is the maximum open connections (default: 3)
	MaxConnections int

	// AcquireTimeout is how long Get may wait (default: 30 seconds)
	AcquireTimeout time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections: 3,
		AcquireTimeout: 30 * time.Second,
	}
}

// NewPool wraps db and applies the capacity limits to it.
func NewPool(db *sql.DB, config PoolConfig) *Pool {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 3
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 30 * time.Second
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections)

	return &Pool{
		db:             db,
		maxConnections: config.MaxConnections,
		acquireTimeout: config.AcquireTimeout,
	}
}

// Get checks out a connection. The caller must call Release when done.
func (p *Pool) Get(ctx context.Context) (*sql.Conn, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, benchErrors.NewAcquireError(benchErrors.CodePoolClosed, "pool: connection pool is closed", nil)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			p.timeouts++
			return nil, benchErrors.NewAcquireError(benchErrors.CodeAcquireTimeout, "pool: timed out waiting for a connection", err)
		}
		p.failures++
		return nil, benchErrors.NewAcquireError(benchErrors.CodeConnectFailed, "pool: failed to open connection", err)
	}

	p.mu.Lock()
	p.active++
	p.acquired++
	p.mu.Unlock()
	return conn, nil
}

// Release returns a connection to the pool. A connection that fails to
// close is still released and counted in PoolStats.ReleaseFailures.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	err := conn.Close()

	p.mu.Lock()
	p.active--
	if err != nil {
		p.releaseFailures++
	}
	p.mu.Unlock()
}

// DB returns the underlying handle for run-wide statements.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the pool and all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

// PoolStats describes pool usage.
type PoolStats struct {
	MaxConnections    int
	ActiveConnections int
	IdleConnections   int
	Acquired          int64
	Timeouts          int64
	Failures          int64
	ReleaseFailures   int64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		MaxConnections:    p.maxConnections,
		ActiveConnections: p.active,
		IdleConnections:   p.db.Stats().Idle,
		Acquired:          p.acquired,
		Timeouts:          p.timeouts,
		Failures:          p.failures,
		ReleaseFailures:   p.releaseFailures,
	}
}
