package store

import (
	"fmt"
	"strings"
)

// DefaultTable is the benchmark table name.
const DefaultTable = "benchmark_tbl"

// Queries are the statement texts the operation executors issue.
type Queries struct {
	Insert      string
	PointUpdate string
	RangeUpdate string
	PointDelete string
	RangeDelete string
	LockRow     string
	BumpRow     string
}

// NewQueries renders the statements for table in dialect d.
func NewQueries(table string, d Dialect) Queries {
	return Queries{
		Insert:      fmt.Sprintf("INSERT INTO %s (id, k1, k2, v1, created_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)", table),
		PointUpdate: fmt.Sprintf("UPDATE %s SET v1 = ? WHERE id = ?", table),
		RangeUpdate: fmt.Sprintf("UPDATE %s SET v1 = ? WHERE id BETWEEN ? AND ?", table),
		PointDelete: fmt.Sprintf("DELETE FROM %s WHERE k1 = ?", table),
		RangeDelete: fmt.Sprintf("DELETE FROM %s WHERE k1 BETWEEN ? AND ?", table),
		LockRow:     d.LockRowQuery(table),
		BumpRow:     fmt.Sprintf("UPDATE %s SET v1 = ?, created_at = CURRENT_TIMESTAMP WHERE id = ?", table),
	}
}

// bulkInsert renders a multi-row insert of n rows.
func bulkInsert(table string, n int) string {
	var b strings.Builder
	b.Grow(64 + n*40)
	fmt.Fprintf(&b, "INSERT INTO %s (id, k1, k2, v1, created_at) VALUES ", table)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, CURRENT_TIMESTAMP)")
	}
	return b.String()
}
