package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
)

// Driver names accepted in configuration.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// splitRegions is the number of regions a TiDB table is pre-split into.
const splitRegions = 64

// Dialect captures everything that differs between store engines.
type Dialect interface {
	// Name is the configured driver name.
	Name() string

	// DSN builds the data source name for cfg.
	DSN(cfg Config) string

	// Schema returns the statements that (re)create the benchmark table.
	Schema(table string) []string

	// ApplyMode switches the engine-wide concurrency-control mode.
	ApplyMode(ctx context.Context, db *sql.DB, mode Mode) error

	// BeginStatement opens an explicit transaction in mode.
	BeginStatement(mode Mode) string

	// WrapAutocommit reports whether single statements must be wrapped in
	// an explicit transaction for the mode to take effect.
	WrapAutocommit() bool

	// LockRowQuery selects one row by id for update.
	LockRowQuery(table string) string

	// PrepareCluster distributes and analyzes a freshly loaded table.
	PrepareCluster(ctx context.Context, db *sql.DB, table string, maxID int64) error

	// MaxLoadBatch is the largest multi-row insert the engine accepts.
	MaxLoadBatch() int

	// Classify maps a driver error to an error code.
	Classify(err error) string
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverSQLite:
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("store: unsupported driver %q (must be %s or %s)", driver, DriverMySQL, DriverSQLite)
	}
}

// mysqlDialect targets TiDB over the MySQL protocol.
type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DriverMySQL }

func (mysqlDialect) DSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Timeout = 10 * time.Second
	mc.Params = map[string]string{"autocommit": "true"}
	return mc.FormatDSN()
}

func (mysqlDialect) Schema(table string) []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		fmt.Sprintf(`CREATE TABLE %s (
			id BIGINT PRIMARY KEY,
			k1 INT,
			k2 VARCHAR(64),
			v1 TEXT,
			created_at TIMESTAMP,
			KEY idx_k1 (k1)
		)`, table),
	}
}

func (mysqlDialect) ApplyMode(ctx context.Context, db *sql.DB, mode Mode) error {
	value := 0
	if mode == ModePessimistic {
		value = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET GLOBAL tidb_pessimistic_autocommit = %d", value)); err != nil {
		return err
	}
	// Global variables only reach new connections; drop the idle ones.
	stats := db.Stats()
	db.SetMaxIdleConns(0)
	db.SetMaxIdleConns(stats.MaxOpenConnections)
	return nil
}

func (mysqlDialect) BeginStatement(mode Mode) string {
	if mode == ModePessimistic {
		return "BEGIN PESSIMISTIC"
	}
	return "BEGIN OPTIMISTIC"
}

func (mysqlDialect) WrapAutocommit() bool { return false }

func (mysqlDialect) LockRowQuery(table string) string {
	return fmt.Sprintf("SELECT id FROM %s WHERE id = ? FOR UPDATE", table)
}

func (mysqlDialect) PrepareCluster(ctx context.Context, db *sql.DB, table string, maxID int64) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stmts := []string{
		"SET tidb_wait_split_region_finish = 1",
		fmt.Sprintf("SPLIT TABLE %s BETWEEN (0) AND (%d) REGIONS %d", table, maxID, splitRegions),
		fmt.Sprintf("ANALYZE TABLE %s", table),
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (mysqlDialect) MaxLoadBatch() int { return 10000 }

func (mysqlDialect) Classify(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1205, 1213, 8002, 9007:
			// lock wait timeout, deadlock, TiDB write conflicts
			return benchErrors.CodeTxFailed
		}
	}
	return benchErrors.CodeStatementFailed
}

// sqliteDialect runs the benchmark against a local SQLite file. Modes map to
// deferred (optimistic) and immediate (pessimistic) write-lock acquisition.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

func (sqliteDialect) DSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Database)
}

func (sqliteDialect) Schema(table string) []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			k1 INTEGER,
			k2 TEXT,
			v1 TEXT,
			created_at TIMESTAMP
		)`, table),
		fmt.Sprintf("CREATE INDEX idx_%s_k1 ON %s(k1)", table, table),
	}
}

func (sqliteDialect) ApplyMode(ctx context.Context, db *sql.DB, mode Mode) error {
	return nil
}

func (sqliteDialect) BeginStatement(mode Mode) string {
	if mode == ModePessimistic {
		return "BEGIN IMMEDIATE"
	}
	return "BEGIN DEFERRED"
}

func (sqliteDialect) WrapAutocommit() bool { return true }

func (sqliteDialect) LockRowQuery(table string) string {
	return fmt.Sprintf("SELECT id FROM %s WHERE id = ?", table)
}

func (sqliteDialect) PrepareCluster(ctx context.Context, db *sql.DB, table string, maxID int64) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("ANALYZE %s", table))
	return err
}

// MaxLoadBatch keeps 4 bound columns per row under SQLITE_MAX_VARIABLE_NUMBER.
func (sqliteDialect) MaxLoadBatch() int { return 8000 }

func (sqliteDialect) Classify(err error) string {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return benchErrors.CodeTxFailed
		}
	}
	return benchErrors.CodeStatementFailed
}
