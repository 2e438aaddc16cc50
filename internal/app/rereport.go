package app

import (
	"context"
	"fmt"
	"io"
	"os"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/report"
	"github.com/dmlbench/dmlbench/internal/storage"
)

// ReportRequest recomputes the comparison of a saved session.
type ReportRequest struct {
	// Samples is a local dump file.
	Samples string

	// Object is an archived dump; it takes precedence over Samples and is
	// fetched from Archive.
	Object  string
	Archive storage.Config

	WindowStart float64
	WindowEnd   float64

	// RecordedWindow windows each trial over its recorded duration.
	RecordedWindow bool

	// OutputDir receives a new CSV when set.
	OutputDir string
}

// Rereport loads a sample dump and reruns the comparison over another
// window. It returns the comparison and the CSV path, if one was written.
func Rereport(ctx context.Context, req ReportRequest, out io.Writer) (*report.Comparison, string, error) {
	if req.WindowStart < 0 || req.WindowStart >= req.WindowEnd || req.WindowEnd > 1 {
		return nil, "", benchErrors.NewConfigError(fmt.Sprintf("report window must satisfy 0 <= start < end <= 1, got %g and %g", req.WindowStart, req.WindowEnd))
	}
	d, err := loadDump(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(d.Results) != 2 {
		return nil, "", benchErrors.NewReportError(benchErrors.CodeMismatch,
			fmt.Sprintf("report: sample dump holds %d results, want 2", len(d.Results)), nil)
	}

	c, err := report.Compare(d.Results[0].Restore(), d.Results[1].Restore(), report.Options{
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Duration:    d.Duration,

		RecordedDuration: req.RecordedWindow,
	})
	if err != nil {
		return nil, "", err
	}
	if err := report.WriteConsole(out, c); err != nil {
		return nil, "", fmt.Errorf("app: failed to print report: %w", err)
	}

	if req.OutputDir == "" {
		return c, "", nil
	}
	p, err := report.SaveCSV(req.OutputDir, d.CreatedAt, c)
	if err != nil {
		return nil, "", err
	}
	return c, p, nil
}

func loadDump(ctx context.Context, req ReportRequest) (metrics.Dump, error) {
	if req.Object == "" {
		return report.LoadDump(req.Samples)
	}

	st, err := storage.New(ctx, req.Archive)
	if err != nil {
		return metrics.Dump{}, fmt.Errorf("failed to open archive storage: %w", err)
	}
	if st == nil {
		return metrics.Dump{}, benchErrors.NewConfigError("an archive type is required to fetch " + req.Object)
	}

	dir, err := os.MkdirTemp("", "dmlbench-report-")
	if err != nil {
		return metrics.Dump{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)
	return report.FetchDump(ctx, st, req.Object, dir)
}
