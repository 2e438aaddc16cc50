// Package config provides the layered configuration of a benchmark session:
// defaults, then a YAML or JSON file, then DMLBENCH_ environment variables,
// then command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/report"
	"github.com/dmlbench/dmlbench/internal/storage"
	"github.com/dmlbench/dmlbench/internal/store"
	"github.com/dmlbench/dmlbench/internal/workload"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "DMLBENCH_"

// Config holds the configuration of one benchmark session.
type Config struct {
	// Store describes the database under test
	Store StoreConfig `json:"store" yaml:"store"`

	// Workload describes the trials
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Report describes the comparison output
	Report ReportConfig `json:"report" yaml:"report"`

	// Telemetry configures logging and the side servers
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// StoreConfig holds the connection settings.
type StoreConfig struct {
	// Driver is mysql (MySQL/TiDB) or sqlite3
	Driver string `json:"driver" yaml:"driver"`

	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`

	// Database is the schema name, or the file path for sqlite3
	Database string `json:"database" yaml:"database"`

	// DSN overrides the fields above when set
	DSN string `json:"dsn" yaml:"dsn"`

	// PoolSize is the maximum number of open sessions; 0 means max(concurrency, 3)
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// AcquireTimeout bounds waiting for a pooled session
	AcquireTimeout time.Duration `json:"acquire_timeout" yaml:"acquire_timeout"`

	// Table is the benchmark table name
	Table string `json:"table" yaml:"table"`
}

// WorkloadConfig holds the trial settings.
type WorkloadConfig struct {
	// Rows is the number of rows loaded before every non-insert trial
	Rows int64 `json:"rows" yaml:"rows"`

	// Concurrency is the number of workers per trial
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Duration is the length of one trial
	Duration time.Duration `json:"duration" yaml:"duration"`

	// OperationInterval is slept between preparation and each trial
	OperationInterval time.Duration `json:"operation_interval" yaml:"operation_interval"`

	// RequestInterval is slept by a worker after every iteration
	RequestInterval time.Duration `json:"request_interval" yaml:"request_interval"`

	// Operations run in this order
	Operations []string `json:"operations" yaml:"operations"`

	// Modes lists exactly two modes; the first is mode A of the report
	Modes []string `json:"modes" yaml:"modes"`

	// Seed derives every worker's random stream; 0 picks one from the clock
	Seed int64 `json:"seed" yaml:"seed"`

	// MaxRate caps iterations per second across all workers; 0 is unlimited
	MaxRate float64 `json:"max_rate" yaml:"max_rate"`

	RangeUpdateSpan  int64 `json:"range_update_span" yaml:"range_update_span"`
	RangeDeleteBatch int64 `json:"range_delete_batch" yaml:"range_delete_batch"`
	InsertKeyspace   int64 `json:"insert_keyspace" yaml:"insert_keyspace"`

	// LoadBatchSize is the rows per insert statement while loading
	LoadBatchSize int `json:"load_batch_size" yaml:"load_batch_size"`

	// Scatter stores k1 = scatter(id) instead of k1 = id
	Scatter bool `json:"scatter" yaml:"scatter"`

	// PrepareCluster splits and analyzes the table after loading (TiDB)
	PrepareCluster bool `json:"prepare_cluster" yaml:"prepare_cluster"`
}

// ReportConfig holds the report settings.
type ReportConfig struct {
	// OutputDir receives the CSV and the sample dump
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// WindowStart and WindowEnd are fractions of the configured duration
	WindowStart float64 `json:"window_start" yaml:"window_start"`
	WindowEnd   float64 `json:"window_end" yaml:"window_end"`

	// RecordedWindow places the window over each trial's recorded duration
	// instead of the configured one
	RecordedWindow bool `json:"recorded_window" yaml:"recorded_window"`

	// SaveSamples writes every sample to a compressed dump
	SaveSamples bool `json:"save_samples" yaml:"save_samples"`

	// Archive uploads the output files after the run
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// ArchiveConfig holds the archive storage settings.
type ArchiveConfig struct {
	// Type is none, local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every object path
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// TelemetryConfig holds logging and side-server settings.
type TelemetryConfig struct {
	// MetricsAddr serves /metrics, /health and /debug/trials; empty disables
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// GRPCAddr serves the gRPC health service; empty disables
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`

	// LogLevel is a pslog level name, or disabled
	LogLevel string `json:"log_level" yaml:"log_level"`

	// LogPath writes logs to a file instead of stderr
	LogPath string `json:"log_path" yaml:"log_path"`
}

// DefaultConfig returns the configuration of the reference TiDB run.
func DefaultConfig() *Config {
	ops := make([]string, 0, len(workload.DefaultOperations))
	for _, op := range workload.DefaultOperations {
		ops = append(ops, op.String())
	}

	return &Config{
		Store: StoreConfig{
			Driver:         store.DriverMySQL,
			Host:           "127.0.0.1",
			Port:           4000,
			User:           "root",
			Database:       "test",
			AcquireTimeout: 30 * time.Second,
			Table:          store.DefaultTable,
		},
		Workload: WorkloadConfig{
			Rows:              10_000_000,
			Concurrency:       1,
			Duration:          30 * time.Second,
			OperationInterval: 15 * time.Second,
			Operations:        ops,
			Modes:             []string{string(store.ModeOptimistic), string(store.ModePessimistic)},
			RangeUpdateSpan:   workload.DefaultRangeUpdateSpan,
			RangeDeleteBatch:  workload.DefaultRangeDeleteBatch,
			InsertKeyspace:    workload.DefaultInsertKeyspace,
			LoadBatchSize:     10000,
			Scatter:           true,
			PrepareCluster:    true,
		},
		Report: ReportConfig{
			OutputDir:   ".",
			WindowStart: 0.25,
			WindowEnd:   0.75,
			SaveSamples: true,
			Archive: ArchiveConfig{
				Type:   storage.TypeNone,
				Prefix: "dmlbench",
			},
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DMLBENCH_ prefix.
func LoadFromEnv(cfg *Config) {
	// Store configuration
	if v := getenv("DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := getenv("HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := getenv("PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.Port)
	}
	if v := getenv("USER"); v != "" {
		cfg.Store.User = v
	}
	if v := getenv("PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := getenv("DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := getenv("DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := getenv("POOL_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.PoolSize)
	}
	envDuration("ACQUIRE_TIMEOUT", &cfg.Store.AcquireTimeout)

	// Workload configuration
	if v := getenv("ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Workload.Rows)
	}
	if v := getenv("CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Workload.Concurrency)
	}
	envDuration("DURATION", &cfg.Workload.Duration)
	envDuration("OPERATION_INTERVAL", &cfg.Workload.OperationInterval)
	envDuration("REQUEST_INTERVAL", &cfg.Workload.RequestInterval)
	if v := getenv("OPERATIONS"); v != "" {
		cfg.Workload.Operations = splitList(v)
	}
	if v := getenv("MODES"); v != "" {
		cfg.Workload.Modes = splitList(v)
	}
	if v := getenv("SEED"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Workload.Seed)
	}
	if v := getenv("MAX_RATE"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Workload.MaxRate)
	}
	if v := getenv("SCATTER"); v != "" {
		cfg.Workload.Scatter = parseBool(v)
	}
	if v := getenv("PREPARE_CLUSTER"); v != "" {
		cfg.Workload.PrepareCluster = parseBool(v)
	}

	// Report configuration
	if v := getenv("OUTPUT_DIR"); v != "" {
		cfg.Report.OutputDir = v
	}
	if v := getenv("RECORDED_WINDOW"); v != "" {
		cfg.Report.RecordedWindow = parseBool(v)
	}
	if v := getenv("SAVE_SAMPLES"); v != "" {
		cfg.Report.SaveSamples = parseBool(v)
	}
	if v := getenv("ARCHIVE_TYPE"); v != "" {
		cfg.Report.Archive.Type = v
	}
	if v := getenv("ARCHIVE_PATH"); v != "" {
		cfg.Report.Archive.Path = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Report.Archive.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Report.Archive.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Report.Archive.S3.Endpoint = v
	}

	// Telemetry configuration
	if v := getenv("METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if v := getenv("GRPC_ADDR"); v != "" {
		cfg.Telemetry.GRPCAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Telemetry.LogLevel = v
	}
	if v := getenv("LOG_PATH"); v != "" {
		cfg.Telemetry.LogPath = v
	}
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func envDuration(name string, dst *time.Duration) {
	if v := getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve fills values derived from other fields.
func (c *Config) Resolve() {
	if c.Store.PoolSize <= 0 {
		c.Store.PoolSize = max(c.Workload.Concurrency, 3)
	}
	if c.Store.Table == "" {
		c.Store.Table = store.DefaultTable
	}
	if c.Workload.Seed == 0 {
		c.Workload.Seed = time.Now().UnixNano()
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "."
	}
	if c.Report.Archive.Type == "" {
		c.Report.Archive.Type = storage.TypeNone
	}
	if c.Report.Archive.Type == storage.TypeLocal && c.Report.Archive.Path == "" {
		c.Report.Archive.Path = filepath.Join(c.Report.OutputDir, "archive")
	}
	for i, m := range c.Workload.Modes {
		c.Workload.Modes[i] = strings.ToLower(strings.TrimSpace(m))
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := store.DialectFor(c.Store.Driver); err != nil {
		return benchErrors.NewConfigError(fmt.Sprintf("invalid driver: %s (must be %s or %s)", c.Store.Driver, store.DriverMySQL, store.DriverSQLite))
	}
	if c.Store.Driver == store.DriverSQLite && c.Store.Database == "" && c.Store.DSN == "" {
		return benchErrors.NewConfigError("store.database is required for sqlite3")
	}
	if c.Store.AcquireTimeout < 0 {
		return benchErrors.NewConfigError("store.acquire_timeout must not be negative")
	}

	w := c.Workload
	if w.Concurrency < 1 {
		return benchErrors.NewConfigError(fmt.Sprintf("workload.concurrency must be at least 1, got %d", w.Concurrency))
	}
	if w.Rows < int64(w.Concurrency) {
		return benchErrors.NewConfigError(fmt.Sprintf("workload.rows (%d) must be at least workload.concurrency (%d)", w.Rows, w.Concurrency))
	}
	if w.Duration <= 0 {
		return benchErrors.NewConfigError("workload.duration must be positive")
	}
	if w.OperationInterval < 0 || w.RequestInterval < 0 {
		return benchErrors.NewConfigError("workload intervals must not be negative")
	}
	if w.MaxRate < 0 {
		return benchErrors.NewConfigError("workload.max_rate must not be negative")
	}
	if w.RangeUpdateSpan < 1 {
		return benchErrors.NewConfigError("workload.range_update_span must be at least 1")
	}
	if w.RangeDeleteBatch < 1 {
		return benchErrors.NewConfigError("workload.range_delete_batch must be at least 1")
	}
	if w.InsertKeyspace < 1 {
		return benchErrors.NewConfigError("workload.insert_keyspace must be at least 1")
	}
	if w.LoadBatchSize < 1 {
		return benchErrors.NewConfigError("workload.load_batch_size must be at least 1")
	}
	if _, err := c.ParsedOperations(); err != nil {
		return err
	}
	if _, err := c.ParsedModes(); err != nil {
		return err
	}

	r := c.Report
	if r.WindowStart < 0 || r.WindowStart >= r.WindowEnd || r.WindowEnd > 1 {
		return benchErrors.NewConfigError(fmt.Sprintf("report window must satisfy 0 <= window_start < window_end <= 1, got %g and %g", r.WindowStart, r.WindowEnd))
	}
	switch r.Archive.Type {
	case storage.TypeNone, storage.TypeLocal, storage.TypeS3:
	default:
		return benchErrors.NewConfigError(fmt.Sprintf("invalid archive type: %s (must be none, local or s3)", r.Archive.Type))
	}
	if r.Archive.Type == storage.TypeS3 && r.Archive.S3.Bucket == "" {
		return benchErrors.NewConfigError("report.archive.s3.bucket is required when archive type is s3")
	}

	return nil
}

// ParsedOperations returns the configured operations in run order.
func (c *Config) ParsedOperations() ([]workload.Operation, error) {
	if len(c.Workload.Operations) == 0 {
		return nil, benchErrors.NewConfigError("workload.operations must not be empty")
	}
	ops, err := workload.ParseOperations(c.Workload.Operations)
	if err != nil {
		return nil, benchErrors.NewConfigError(err.Error())
	}
	return ops, nil
}

// ParsedModes returns mode A and mode B.
func (c *Config) ParsedModes() ([2]store.Mode, error) {
	var modes [2]store.Mode
	if len(c.Workload.Modes) != 2 {
		return modes, benchErrors.NewConfigError(fmt.Sprintf("workload.modes must list exactly two modes, got %d", len(c.Workload.Modes)))
	}
	for i, name := range c.Workload.Modes {
		m, err := store.ParseMode(name)
		if err != nil {
			return modes, benchErrors.NewConfigError(err.Error())
		}
		modes[i] = m
	}
	if modes[0] == modes[1] {
		return modes, benchErrors.NewConfigError("workload.modes must be two distinct modes")
	}
	return modes, nil
}

// StoreConfig returns the connection settings for store.Open.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:         c.Store.Driver,
		DSN:            c.Store.DSN,
		Host:           c.Store.Host,
		Port:           c.Store.Port,
		User:           c.Store.User,
		Password:       c.Store.Password,
		Database:       c.Store.Database,
		PoolSize:       c.Store.PoolSize,
		AcquireTimeout: c.Store.AcquireTimeout,
	}
}

// PrepareOptions returns the table preparation for a trial of op.
func (c *Config) PrepareOptions(op workload.Operation) store.PrepareOptions {
	opts := store.PrepareOptions{
		Table:        c.Store.Table,
		Workers:      c.Workload.Concurrency,
		BatchSize:    c.Workload.LoadBatchSize,
		Scatter:      c.Workload.Scatter,
		Cluster:      c.Workload.PrepareCluster,
		ClusterMaxID: c.Workload.Rows,
	}
	if op.NeedsRows() {
		opts.Rows = c.Workload.Rows
	} else {
		opts.ClusterMaxID = c.Workload.InsertKeyspace
	}
	return opts
}

// TrialConfig returns the settings of one (operation, mode) trial.
func (c *Config) TrialConfig(op workload.Operation, mode store.Mode) workload.TrialConfig {
	return workload.TrialConfig{
		Operation:        op,
		Mode:             string(mode),
		Rows:             c.Workload.Rows,
		Concurrency:      c.Workload.Concurrency,
		Duration:         c.Workload.Duration,
		ThinkTime:        c.Workload.RequestInterval,
		MaxRate:          c.Workload.MaxRate,
		InsertKeyspace:   c.Workload.InsertKeyspace,
		RangeUpdateSpan:  c.Workload.RangeUpdateSpan,
		RangeDeleteBatch: c.Workload.RangeDeleteBatch,
		Scatter:          c.Workload.Scatter,
		Seed:             c.Workload.Seed,
	}
}

// ReportOptions returns the statistics window.
func (c *Config) ReportOptions() report.Options {
	return report.Options{
		WindowStart: c.Report.WindowStart,
		WindowEnd:   c.Report.WindowEnd,
		Duration:    c.Workload.Duration,

		RecordedDuration: c.Report.RecordedWindow,
	}
}

// ArchiveStorage returns the archive storage settings.
func (c *Config) ArchiveStorage() storage.Config {
	a := c.Report.Archive
	return storage.Config{
		Type: a.Type,
		Path: a.Path,
		S3: storage.S3Config{
			Bucket:       a.S3.Bucket,
			Region:       a.S3.Region,
			Endpoint:     a.S3.Endpoint,
			UsePathStyle: a.S3.UsePathStyle,
		},
	}
}
