package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
)

// FileName returns the CSV name for a session started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("benchmark_results_%s.csv", t.Format("20060102_150405"))
}

// WriteCSV writes one row per (operation, metric) plus one error row per
// operation.
func WriteCSV(w io.Writer, c *Comparison) error {
	cw := csv.NewWriter(w)
	header := []string{"operation", "metric", c.ModeA, c.ModeB, "difference", "percent_difference"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, op := range c.Operations {
		for _, r := range op.Rows() {
			if err := cw.Write(csvRecord(op.Operation, r)); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRecord(operation string, r Row) []string {
	if r.Metric == MetricErrors {
		return []string{
			operation,
			r.Metric,
			strconv.FormatInt(int64(r.A), 10),
			strconv.FormatInt(int64(r.B), 10),
			strconv.FormatInt(int64(r.Diff), 10),
			formatFloat(r.Percent),
		}
	}
	return []string{
		operation,
		r.Metric,
		formatFloat(r.A),
		formatFloat(r.B),
		formatFloat(r.Diff),
		formatFloat(r.Percent),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// SaveCSV writes c to dir under FileName(started) and returns the path.
func SaveCSV(dir string, started time.Time, c *Comparison) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to create output directory", err)
	}

	path := filepath.Join(dir, FileName(started))
	f, err := os.Create(path)
	if err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to create csv", err)
	}
	if err := WriteCSV(f, c); err != nil {
		f.Close()
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to write csv", err)
	}
	if err := f.Close(); err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to close csv", err)
	}
	return path, nil
}
