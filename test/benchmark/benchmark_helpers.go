package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmlbench/dmlbench/internal/metrics"
	"github.com/dmlbench/dmlbench/internal/storage"
	"github.com/dmlbench/dmlbench/internal/store"
)

// getArchiveStorage returns the storage archive benchmarks write to and the
// object prefix to use. It respects DMLBENCH_ARCHIVE_TYPE=s3 from .env or
// the environment; otherwise it writes to a temp dir.
func getArchiveStorage(b *testing.B, benchName string) (storage.ObjectStorage, string) {
	// Try loading .env from project root (../../.env relative to test/benchmark)
	_ = godotenv.Load("../../.env")

	if os.Getenv("DMLBENCH_ARCHIVE_TYPE") == storage.TypeS3 {
		bucket := os.Getenv("DMLBENCH_S3_BUCKET")
		if bucket == "" {
			b.Fatal("DMLBENCH_S3_BUCKET is required for s3 benchmark")
		}

		cfg := storage.DefaultS3Config()
		cfg.Bucket = bucket
		if v := os.Getenv("DMLBENCH_S3_REGION"); v != "" {
			cfg.Region = v
		}
		cfg.Endpoint = os.Getenv("DMLBENCH_S3_ENDPOINT")
		cfg.UsePathStyle = cfg.Endpoint != ""

		st, err := storage.NewS3Storage(context.Background(), cfg)
		if err != nil {
			b.Fatalf("Failed to initialize S3 storage: %v", err)
		}

		// Unique prefix for this run; objects are left for inspection
		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("Running benchmark against S3 Bucket: %s Prefix: %s", bucket, prefix)
		return st, prefix
	}

	st, err := storage.NewLocalStorage(filepath.Join(b.TempDir(), "storage"))
	if err != nil {
		b.Fatal(err)
	}
	return st, "bench/" + benchName
}

// openSQLite opens a file-backed store loaded with rows scattered rows.
func openSQLite(b *testing.B, rows int64, poolSize int) *store.SQLStore {
	b.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		Driver:         store.DriverSQLite,
		Database:       filepath.Join(b.TempDir(), "bench.db"),
		PoolSize:       poolSize,
		AcquireTimeout: 30 * time.Second,
	}, nil)
	if err != nil {
		b.Fatalf("open store: %v", err)
	}
	b.Cleanup(func() { st.Close() })

	if err := store.Prepare(ctx, st, store.PrepareOptions{
		Rows:      rows,
		Workers:   poolSize,
		BatchSize: 1000,
		Scatter:   true,
	}, nil); err != nil {
		b.Fatalf("prepare: %v", err)
	}
	return st
}

// syntheticMetrics returns n samples spread evenly over d with latencies
// cycling through 0.5..5.5 ms.
func syntheticMetrics(op string, n int, d time.Duration) *metrics.Metrics {
	m := metrics.NewMetrics(op)
	for i := 0; i < n; i++ {
		m.Record(time.Duration(i)*d/time.Duration(n), 0.5+float64(i%11)*0.5)
	}
	m.SetDuration(d)
	return m
}
