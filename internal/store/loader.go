package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/keyspace"
)

// PrepareOptions controls how a trial's table is rebuilt.
type PrepareOptions struct {
	Table string

	// Rows is the number of rows to load; 0 leaves the table empty.
	Rows int64

	// Workers is the number of parallel loaders.
	Workers int

	// BatchSize is the rows per multi-row insert, capped by the dialect.
	BatchSize int

	// Scatter sets k1 = scatter(id, Rows) instead of k1 = id.
	Scatter bool

	// Cluster distributes and analyzes the table after loading.
	Cluster bool

	// ClusterMaxID is the upper bound used to distribute the table.
	ClusterMaxID int64
}

// ClusterPreparer is implemented by stores that can distribute a table.
type ClusterPreparer interface {
	PrepareCluster(ctx context.Context, table string, maxID int64) error
}

// Prepare recreates the benchmark table, loads it, and prepares the cluster.
func Prepare(ctx context.Context, st Store, opts PrepareOptions, logger pslog.Logger) error {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}

	if err := createSchema(ctx, st, opts.Table); err != nil {
		return err
	}

	if opts.Rows > 0 {
		start := time.Now()
		if err := Load(ctx, st, opts, logger); err != nil {
			return err
		}
		logger.Info("load.done",
			"table", opts.Table,
			"rows", humanize.Comma(opts.Rows),
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
	}

	if opts.Cluster {
		cp, ok := st.(ClusterPreparer)
		if ok {
			if err := cp.PrepareCluster(ctx, opts.Table, opts.ClusterMaxID); err != nil {
				return err
			}
			logger.Info("cluster.prepared", "table", opts.Table, "max_id", opts.ClusterMaxID)
		}
	}
	return nil
}

func createSchema(ctx context.Context, st Store, table string) error {
	sess, err := st.Acquire(ctx)
	if err != nil {
		return benchErrors.NewSetupError(benchErrors.CodeSchemaFailed, "store: failed to acquire session for schema", err)
	}
	defer sess.Release()

	for _, stmt := range st.Dialect().Schema(table) {
		if _, err := sess.Exec(ctx, stmt); err != nil {
			return benchErrors.NewSetupError(benchErrors.CodeSchemaFailed, "store: failed to create schema", err)
		}
	}
	return nil
}

// Load inserts ids [0, opts.Rows) split across opts.Workers loaders.
func Load(ctx context.Context, st Store, opts PrepareOptions, logger pslog.Logger) error {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if int64(workers) > opts.Rows {
		workers = int(opts.Rows)
	}
	batchSize := opts.BatchSize
	if limit := st.Dialect().MaxLoadBatch(); batchSize <= 0 || batchSize > limit {
		batchSize = limit
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		r := keyspace.Partition(i, workers, opts.Rows)
		worker := i
		g.Go(func() error {
			for start := r.Start; start < r.End; start += int64(batchSize) {
				end := start + int64(batchSize)
				if end > r.End {
					end = r.End
				}
				if err := loadBatch(gctx, st, opts, start, end); err != nil {
					return err
				}
				logger.Debug("load.batch", "worker", worker, "start", start, "end", end)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return benchErrors.NewSetupError(benchErrors.CodeLoadFailed, "store: bulk load failed", err)
	}
	return nil
}

func loadBatch(ctx context.Context, st Store, opts PrepareOptions, start, end int64) error {
	n := int(end - start)
	args := make([]any, 0, n*4)
	for id := start; id < end; id++ {
		k1 := id
		if opts.Scatter {
			k1 = keyspace.Scatter(id, opts.Rows)
		}
		args = append(args, id, k1, fmt.Sprintf("key-%d", id), "initial-value")
	}

	sess, err := st.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	affected, err := sess.Exec(ctx, bulkInsert(opts.Table, n), args...)
	if err != nil {
		return fmt.Errorf("batch [%d, %d): %w", start, end, err)
	}
	if affected != int64(n) {
		return fmt.Errorf("batch [%d, %d): inserted %d rows, want %d", start, end, affected, n)
	}
	return nil
}
