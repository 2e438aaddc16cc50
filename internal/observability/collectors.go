package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	benchErrors "github.com/dmlbench/dmlbench/internal/errors"
	"github.com/dmlbench/dmlbench/internal/workload"
)

// Collectors exports live worker outcomes on a private registry. Labels are
// bounded by the operation and mode lists, so cardinality stays small.
type Collectors struct {
	registry *prometheus.Registry
	stats    *TrialStats

	opsTotal   *prometheus.CounterVec
	errorTotal *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	throughput *prometheus.GaugeVec
}

// NewCollectors registers the benchmark metrics. stats may be nil.
func NewCollectors(stats *TrialStats) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		stats:    stats,
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmlbench_operations_total",
			Help: "Successful benchmark iterations",
		}, []string{"operation", "mode"}),
		errorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmlbench_errors_total",
			Help: "Failed benchmark iterations by error category",
		}, []string{"operation", "mode", "category"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmlbench_latency_seconds",
			Help:    "Latency of successful benchmark iterations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"operation", "mode"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dmlbench_trial_throughput",
			Help: "Windowed throughput of the last finished trial, ops/sec",
		}, []string{"operation", "mode"}),
	}
	c.registry.MustRegister(
		c.opsTotal,
		c.errorTotal,
		c.latency,
		c.throughput,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveSuccess implements workload.Observer.
func (c *Collectors) ObserveSuccess(op workload.Operation, mode string, latency time.Duration) {
	c.opsTotal.WithLabelValues(op.String(), mode).Inc()
	c.latency.WithLabelValues(op.String(), mode).Observe(latency.Seconds())
}

// ObserveError implements workload.Observer.
func (c *Collectors) ObserveError(op workload.Operation, mode string, err error) {
	category := string(benchErrors.GetCategory(err))
	if category == "" {
		category = "UNKNOWN"
	}
	c.errorTotal.WithLabelValues(op.String(), mode, category).Inc()
	if c.stats != nil {
		c.stats.RecordError(op.String(), mode, category)
	}
}

// ObserveTrial publishes a finished trial's windowed throughput and keeps
// its summary.
func (c *Collectors) ObserveTrial(s TrialSummary) {
	c.throughput.WithLabelValues(s.Operation, s.Mode).Set(s.Throughput)
	if c.stats != nil {
		c.stats.RecordTrial(s)
	}
}

// Registry returns the private registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ workload.Observer = (*Collectors)(nil)
