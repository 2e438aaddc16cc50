package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmlbench/dmlbench/internal/app"
	"github.com/dmlbench/dmlbench/internal/config"
	"github.com/dmlbench/dmlbench/internal/logging"
)

func newRunCommand() *cobra.Command {
	var (
		configFile string
		envFile    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured operation under both modes and compare them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, envFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to configuration file (YAML or JSON)")
	flags.StringVar(&envFile, "env-file", "", "load DMLBENCH_* variables from this file (default .env when present)")
	registerRunFlags(flags)
	return cmd
}

func registerRunFlags(flags *pflag.FlagSet) {
	d := config.DefaultConfig()

	// store
	flags.String("driver", d.Store.Driver, "database driver: mysql (MySQL/TiDB) or sqlite3")
	flags.String("host", d.Store.Host, "database host")
	flags.Int("port", d.Store.Port, "database port")
	flags.String("user", d.Store.User, "database user")
	flags.String("password", "", "database password")
	flags.String("database", d.Store.Database, "database name, or file path for sqlite3")
	flags.String("dsn", "", "full driver DSN, overrides host/port/user/password/database")
	flags.Int("pool-size", 0, "maximum open sessions (0 = max(concurrency, 3))")
	flags.Duration("acquire-timeout", d.Store.AcquireTimeout, "maximum wait for a pooled session")
	flags.String("table", "", "benchmark table name")

	// workload
	flags.Int64("rows", d.Workload.Rows, "rows loaded before every update and delete trial")
	flags.IntP("concurrency", "c", d.Workload.Concurrency, "workers per trial")
	flags.DurationP("duration", "d", d.Workload.Duration, "length of one trial")
	flags.Duration("operation-interval", d.Workload.OperationInterval, "pause between preparation and each trial")
	flags.Duration("request-interval", 0, "pause after every iteration of a worker")
	flags.StringSlice("operations", d.Workload.Operations, "operations to run, in order")
	flags.StringSlice("modes", d.Workload.Modes, "the two modes to compare; the first is mode A")
	flags.Int64("seed", 0, "random seed (0 = derived from the clock)")
	flags.Float64("max-rate", 0, "iterations per second across all workers (0 = unlimited)")
	flags.Int64("range-update-span", d.Workload.RangeUpdateSpan, "rows past the start id touched by one range update")
	flags.Int64("range-delete-batch", d.Workload.RangeDeleteBatch, "k1 values claimed by one range delete")
	flags.Int64("insert-keyspace", d.Workload.InsertKeyspace, "key space the insert cursor is scattered over")
	flags.Int("load-batch-size", d.Workload.LoadBatchSize, "rows per insert statement while loading")
	flags.Bool("scatter", d.Workload.Scatter, "scatter k1 over the key space instead of k1 = id")
	flags.Bool("prepare-cluster", d.Workload.PrepareCluster, "split and analyze the table after loading (TiDB)")

	// report
	flags.String("output-dir", d.Report.OutputDir, "directory for the CSV and the sample dump")
	flags.Float64("window-start", d.Report.WindowStart, "statistics window start, as a fraction of the configured duration")
	flags.Float64("window-end", d.Report.WindowEnd, "statistics window end, as a fraction of the configured duration")
	flags.Bool("recorded-window", d.Report.RecordedWindow, "window each trial over its recorded duration instead of --duration")
	flags.Bool("save-samples", d.Report.SaveSamples, "save every sample to a compressed dump")
	flags.String("archive-type", d.Report.Archive.Type, "archive the results to none, local or s3")
	flags.String("archive-path", "", "local archive root")
	flags.String("s3-bucket", "", "S3 archive bucket")
	flags.String("s3-region", "", "S3 archive region")
	flags.String("s3-endpoint", "", "S3-compatible endpoint")
	flags.Bool("s3-path-style", false, "use path-style S3 addressing")

	// telemetry
	flags.String("metrics-addr", "", "serve /metrics, /health and /debug/trials on this address")
	flags.String("grpc-addr", "", "serve the gRPC health service on this address")
	flags.String("log-level", d.Telemetry.LogLevel, "log level (trace, debug, info, warn, error, disabled)")
	flags.String("log-path", "", "write logs to this file instead of stderr")
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user set.
func loadConfig(configFile, envFile string, flags *pflag.FlagSet) (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}
	int64v := func(name string, dst *int64) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt64(name)
		}
	}
	float := func(name string, dst *float64) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetFloat64(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetBool(name)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetDuration(name)
		}
	}
	list := func(name string, dst *[]string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetStringSlice(name)
		}
	}

	str("driver", &cfg.Store.Driver)
	str("host", &cfg.Store.Host)
	integer("port", &cfg.Store.Port)
	str("user", &cfg.Store.User)
	str("password", &cfg.Store.Password)
	str("database", &cfg.Store.Database)
	str("dsn", &cfg.Store.DSN)
	integer("pool-size", &cfg.Store.PoolSize)
	duration("acquire-timeout", &cfg.Store.AcquireTimeout)
	str("table", &cfg.Store.Table)

	int64v("rows", &cfg.Workload.Rows)
	integer("concurrency", &cfg.Workload.Concurrency)
	duration("duration", &cfg.Workload.Duration)
	duration("operation-interval", &cfg.Workload.OperationInterval)
	duration("request-interval", &cfg.Workload.RequestInterval)
	list("operations", &cfg.Workload.Operations)
	list("modes", &cfg.Workload.Modes)
	int64v("seed", &cfg.Workload.Seed)
	float("max-rate", &cfg.Workload.MaxRate)
	int64v("range-update-span", &cfg.Workload.RangeUpdateSpan)
	int64v("range-delete-batch", &cfg.Workload.RangeDeleteBatch)
	int64v("insert-keyspace", &cfg.Workload.InsertKeyspace)
	integer("load-batch-size", &cfg.Workload.LoadBatchSize)
	boolean("scatter", &cfg.Workload.Scatter)
	boolean("prepare-cluster", &cfg.Workload.PrepareCluster)

	str("output-dir", &cfg.Report.OutputDir)
	float("window-start", &cfg.Report.WindowStart)
	float("window-end", &cfg.Report.WindowEnd)
	boolean("recorded-window", &cfg.Report.RecordedWindow)
	boolean("save-samples", &cfg.Report.SaveSamples)
	str("archive-type", &cfg.Report.Archive.Type)
	str("archive-path", &cfg.Report.Archive.Path)
	str("s3-bucket", &cfg.Report.Archive.S3.Bucket)
	str("s3-region", &cfg.Report.Archive.S3.Region)
	str("s3-endpoint", &cfg.Report.Archive.S3.Endpoint)
	boolean("s3-path-style", &cfg.Report.Archive.S3.UsePathStyle)

	str("metrics-addr", &cfg.Telemetry.MetricsAddr)
	str("grpc-addr", &cfg.Telemetry.GRPCAddr)
	str("log-level", &cfg.Telemetry.LogLevel)
	str("log-path", &cfg.Telemetry.LogPath)

	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return nil
}

func runBenchmark(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, closeLog, err := logging.New(cfg.Telemetry.LogLevel, cfg.Telemetry.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()

	application, err := app.New(cfg, app.WithLogger(logger), app.WithOutput(out))
	if err != nil {
		return err
	}
	printBanner(out, cfg)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go application.ShutdownManager().ListenForSignals(listenCtx)

	sess, runErr := application.Run(ctx)
	if err := application.Stop(context.Background()); err != nil {
		logger.Warn("shutdown.error", "error", err.Error())
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "Results saved to %s\n", sess.CSVPath)
	if sess.DumpPath != "" {
		fmt.Fprintf(out, "Samples saved to %s\n", sess.DumpPath)
	}
	for _, obj := range sess.Archived {
		fmt.Fprintf(out, "Archived %s\n", obj)
	}
	return nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "dmlbench %s\n", version)
	fmt.Fprintf(w, "  Driver:      %s\n", cfg.Store.Driver)
	fmt.Fprintf(w, "  Rows:        %s\n", humanize.Comma(cfg.Workload.Rows))
	fmt.Fprintf(w, "  Concurrency: %d\n", cfg.Workload.Concurrency)
	fmt.Fprintf(w, "  Duration:    %s per trial\n", cfg.Workload.Duration)
	fmt.Fprintf(w, "  Operations:  %s\n", strings.Join(cfg.Workload.Operations, ", "))
	fmt.Fprintf(w, "  Modes:       %s vs %s\n", cfg.Workload.Modes[0], cfg.Workload.Modes[1])
	if cfg.Telemetry.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.Telemetry.MetricsAddr)
	}
	fmt.Fprintln(w)
}
