package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
)

// Config describes how to reach the store.
type Config struct {
	Driver         string
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	PoolSize       int
	AcquireTimeout time.Duration
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	dialect Dialect
	pool    *Pool
	logger  pslog.Logger

	mu   sync.RWMutex
	mode Mode
}

// Open connects to the store described by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, logger pslog.Logger) (*SQLStore, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, benchErrors.NewSetupError(benchErrors.CodeConnectFailed, "store: invalid driver", err)
	}

	db, err := sql.Open(dialect.Name(), dialect.DSN(cfg))
	if err != nil {
		return nil, benchErrors.NewSetupError(benchErrors.CodeConnectFailed, "store: failed to open database", err)
	}

	pool := NewPool(db, PoolConfig{
		MaxConnections: cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, benchErrors.NewSetupError(benchErrors.CodeConnectFailed, "store: failed to ping database", err)
	}

	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger.Info("store.open", "driver", dialect.Name(), "pool_size", pool.Stats().MaxConnections)

	return &SQLStore{
		dialect: dialect,
		pool:    pool,
		logger:  logger,
		mode:    ModeOptimistic,
	}, nil
}

// Acquire checks out a session bound to the current mode.
func (s *SQLStore) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlSession{
		pool:    s.pool,
		conn:    conn,
		dialect: s.dialect,
		mode:    s.Mode(),
	}, nil
}

// ApplyMode switches the store to mode.
func (s *SQLStore) ApplyMode(ctx context.Context, mode Mode) error {
	if err := s.dialect.ApplyMode(ctx, s.pool.DB(), mode); err != nil {
		return benchErrors.NewSetupError(benchErrors.CodeModeFailed, fmt.Sprintf("store: failed to apply %s mode", mode), err)
	}

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.logger.Info("store.mode", "mode", string(mode))
	return nil
}

// Mode returns the current mode.
func (s *SQLStore) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Dialect returns the store dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// PrepareCluster distributes and analyzes table after a load.
func (s *SQLStore) PrepareCluster(ctx context.Context, table string, maxID int64) error {
	if err := s.dialect.PrepareCluster(ctx, s.pool.DB(), table, maxID); err != nil {
		return benchErrors.NewSetupError(benchErrors.CodeClusterFailed, "store: failed to prepare cluster", err)
	}
	return nil
}

// Stats returns pool statistics.
func (s *SQLStore) Stats() PoolStats {
	return s.pool.Stats()
}

// Close closes the pool.
func (s *SQLStore) Close() error {
	if n := s.pool.Stats().ReleaseFailures; n > 0 {
		s.logger.Warn("store.release.failed", "connections", n)
	}
	return s.pool.Close()
}

// sqlSession is a checked-out connection.
type sqlSession struct {
	pool     *Pool
	conn     *sql.Conn
	dialect  Dialect
	mode     Mode
	released bool
}

// Exec runs one statement. Under dialects that need it, the statement is
// wrapped in a transaction opened in the session's mode.
func (s *sqlSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.WrapAutocommit() {
		var affected int64
		err := s.Transact(ctx, func(tx Execer) error {
			var err error
			affected, err = tx.Exec(ctx, query, args...)
			return err
		})
		return affected, err
	}
	return connExecer{conn: s.conn, dialect: s.dialect}.Exec(ctx, query, args...)
}

// Transact runs fn between BEGIN and COMMIT on this connection.
func (s *sqlSession) Transact(ctx context.Context, fn func(tx Execer) error) error {
	if _, err := s.conn.ExecContext(ctx, s.dialect.BeginStatement(s.mode)); err != nil {
		return s.wrap("store: failed to begin transaction", err)
	}

	if err := fn(connExecer{conn: s.conn, dialect: s.dialect}); err != nil {
		// Rollback on a fresh context so a cancelled ctx still releases locks.
		rbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = s.conn.ExecContext(rbCtx, "ROLLBACK")
		return err
	}

	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return benchErrors.Wrap(benchErrors.ErrCategoryExecution, benchErrors.CodeTxFailed, "store: commit failed", err)
	}
	return nil
}

// Release returns the connection to the pool. Safe to call twice.
func (s *sqlSession) Release() {
	if s.released {
		return
	}
	s.released = true
	s.pool.Release(s.conn)
}

func (s *sqlSession) wrap(message string, err error) error {
	return benchErrors.Wrap(benchErrors.ErrCategoryExecution, s.dialect.Classify(err), message, err)
}

// connExecer executes directly on a connection.
type connExecer struct {
	conn    *sql.Conn
	dialect Dialect
}

func (c connExecer) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, benchErrors.Wrap(benchErrors.ErrCategoryExecution, c.dialect.Classify(err), "store: statement failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, benchErrors.NewExecutionError("store: rows affected unavailable", err)
	}
	return n, nil
}
