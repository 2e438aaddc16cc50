package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchUploader uploads several run artifacts in parallel under one prefix.
type BatchUploader struct {
	storage     ObjectStorage
	concurrency int
	prefix      string
}

// BatchResult contains the outcome of a batch upload.
type BatchResult struct {
	// Objects maps each local path to its object path.
	Objects map[string]string
	Errors  map[string]error
}

// Err returns the first upload error in local-path order, if any.
func (r *BatchResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	failed := make([]string, 0, len(r.Errors))
	for p := range r.Errors {
		failed = append(failed, p)
	}
	sort.Strings(failed)
	return fmt.Errorf("upload %s: %w", failed[0], r.Errors[failed[0]])
}

// NewBatchUploader creates a new batch uploader.
// prefix is joined in front of every object path, e.g. "runs/<run-id>".
func NewBatchUploader(storage ObjectStorage, concurrency int, prefix string) *BatchUploader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchUploader{
		storage:     storage,
		concurrency: concurrency,
		prefix:      prefix,
	}
}

// ObjectPath returns where localPath is archived.
func (b *BatchUploader) ObjectPath(localPath string) string {
	return path.Join(b.prefix, filepath.Base(localPath))
}

// Upload uploads every file in localPaths. Per-file failures are collected
// in the result; the error is non-nil only if ctx ends first.
func (b *BatchUploader) Upload(ctx context.Context, localPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		Objects: make(map[string]string),
		Errors:  make(map[string]error),
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, local := range localPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, fmt.Errorf("semaphore acquire failed: %w", err)
		}

		wg.Add(1)
		go func(local, object string) {
			defer sem.Release(1)
			defer wg.Done()

			err := b.storage.Upload(ctx, local, object)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[local] = err
				return
			}
			result.Objects[local] = object
		}(local, b.ObjectPath(local))
	}

	wg.Wait()
	return result, nil
}
