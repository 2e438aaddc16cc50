package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	srcDir := t.TempDir()
	srcPath := writeFile(t, srcDir, "results.csv", "operation,metric\n")
	ctx := context.Background()

	objectPath := "runs/abc/results.csv"
	if err := storage.Upload(ctx, srcPath, objectPath); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	dstPath := filepath.Join(srcDir, "nested", "downloaded.csv")
	if err := storage.Download(ctx, objectPath, dstPath); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	downloaded, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(downloaded) != "operation,metric\n" {
		t.Errorf("content mismatch: got %q", downloaded)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// deleting again is not an error
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	err = storage.Download(context.Background(), "missing.dump", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	src := writeFile(t, t.TempDir(), "f", "x")

	for _, obj := range []string{"runs/a/one.csv", "runs/a/two.dump", "runs/b/one.csv"} {
		if err := storage.Upload(ctx, src, obj); err != nil {
			t.Fatalf("Upload %s failed: %v", obj, err)
		}
	}

	got, err := storage.ListObjects(ctx, "runs/a")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(got) != 2 || got[0] != "runs/a/one.csv" || got[1] != "runs/a/two.dump" {
		t.Errorf("unexpected objects %v", got)
	}

	none, err := storage.ListObjects(ctx, "runs/zzz")
	if err != nil || len(none) != 0 {
		t.Errorf("missing prefix should list nothing, got %v, %v", none, err)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Upload(ctx, "x", "y"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	src := writeFile(t, t.TempDir(), "f", "x")
	ctx := context.Background()

	if err := storage.Upload(ctx, src, "../outside.csv"); !errors.Is(err, ErrUploadFailed) {
		t.Errorf("expected ErrUploadFailed, got %v", err)
	}
	if _, err := storage.Exists(ctx, "runs/../../x"); err == nil {
		t.Error("expected invalid path error")
	}
	// leading slashes stay inside the root
	if err := storage.Upload(ctx, src, "/runs/a.csv"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(storage.Root(), "runs", "a.csv")); err != nil {
		t.Errorf("expected object under root: %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"runs/a/benchmark_results_20260101_120000.csv":  "text/csv",
		"runs/a/benchmark_samples_20260101_120000.dump": "application/octet-stream",
		"runs/a/summary.json":                           "application/json",
	}
	for obj, want := range tests {
		if got := contentType(obj); got != want {
			t.Errorf("contentType(%q) = %q, want %q", obj, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Type: TypeNone})
	if err != nil || s != nil {
		t.Errorf("none should yield no storage, got %v, %v", s, err)
	}

	s, err = New(ctx, Config{Type: TypeLocal, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Errorf("expected *LocalStorage, got %T", s)
	}

	if _, err := New(ctx, Config{Type: TypeS3}); err == nil {
		t.Error("s3 without bucket should fail")
	}
	if _, err := New(ctx, Config{Type: "gcs"}); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestBatchUploader_UploadsUnderPrefix(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "benchmark_results_20260101_120000.csv", "csv"),
		writeFile(t, dir, "samples.dump", "dump"),
	}

	up := NewBatchUploader(storage, 2, "runs/run-1")
	res, err := up.Upload(context.Background(), append(files, filepath.Join(dir, "missing")))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if len(res.Objects) != 2 {
		t.Fatalf("expected 2 uploads, got %v", res.Objects)
	}
	if res.Objects[files[0]] != "runs/run-1/benchmark_results_20260101_120000.csv" {
		t.Errorf("unexpected object path %q", res.Objects[files[0]])
	}
	if len(res.Errors) != 1 || res.Err() == nil {
		t.Errorf("expected one failed upload, got %v", res.Errors)
	}

	ok, _ := storage.Exists(context.Background(), "runs/run-1/samples.dump")
	if !ok {
		t.Error("samples.dump not archived")
	}
}
