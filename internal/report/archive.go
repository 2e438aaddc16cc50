package report

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/storage"
)

// NewRunID returns a unique id for one benchmark session.
func NewRunID() string {
	return uuid.NewString()
}

// DumpFileName returns the sample dump name for a session started at t.
func DumpFileName(t time.Time) string {
	return fmt.Sprintf("benchmark_samples_%s.dump", t.Format("20060102_150405"))
}

// SaveDump writes d to dir under DumpFileName(d.CreatedAt).
func SaveDump(dir string, d metrics.Dump) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to create output directory", err)
	}
	p := filepath.Join(dir, DumpFileName(d.CreatedAt))
	f, err := os.Create(p)
	if err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to create sample dump", err)
	}
	if err := metrics.WriteDump(f, d); err != nil {
		f.Close()
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to write sample dump", err)
	}
	if err := f.Close(); err != nil {
		return "", benchErrors.NewReportError(benchErrors.CodeWriteFailed, "report: failed to close sample dump", err)
	}
	return p, nil
}

// LoadDump reads a dump written by SaveDump.
func LoadDump(p string) (metrics.Dump, error) {
	f, err := os.Open(p)
	if err != nil {
		return metrics.Dump{}, benchErrors.NewReportError(benchErrors.CodeReadFailed, "report: failed to open sample dump", err)
	}
	defer f.Close()
	d, err := metrics.ReadDump(f)
	if err != nil {
		return metrics.Dump{}, benchErrors.NewReportError(benchErrors.CodeReadFailed, "report: invalid sample dump", err)
	}
	return d, nil
}

// FetchDump downloads an archived dump to dir and reads it.
func FetchDump(ctx context.Context, st storage.ObjectStorage, objectPath, dir string) (metrics.Dump, error) {
	local := filepath.Join(dir, path.Base(objectPath))
	if err := st.Download(ctx, objectPath, local); err != nil {
		return metrics.Dump{}, benchErrors.NewReportError(benchErrors.CodeArchiveFailed,
			fmt.Sprintf("report: failed to fetch %s", objectPath), err)
	}
	return LoadDump(local)
}

// Archive uploads files under <prefix>/<runID>/ and returns the object
// paths in file order.
func Archive(ctx context.Context, st storage.ObjectStorage, prefix, runID string, files ...string) ([]string, error) {
	up := storage.NewBatchUploader(st, len(files), path.Join(prefix, runID))
	res, err := up.Upload(ctx, files)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return nil, benchErrors.NewReportError(benchErrors.CodeArchiveFailed, "report: failed to archive results", err)
	}

	objects := make([]string, 0, len(res.Objects))
	for _, f := range files {
		objects = append(objects, res.Objects[f])
	}
	return objects, nil
}
