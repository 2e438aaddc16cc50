package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"pkt.systems/pslog"

	"github.com/dmlbench/dmlbench/internal/observability"
)

// HealthService is the gRPC health service name the benchmark reports under.
const HealthService = "dmlbench"

// Phases reported by /health and the gRPC health status.
const (
	PhaseStarting  = "starting"
	PhasePreparing = "preparing"
	PhaseRunning   = "running"
	PhaseReporting = "reporting"
	PhaseDone      = "done"
)

// TrialSource lists finished trial summaries.
type TrialSource interface {
	Trials() []observability.TrialSummary
}

// TelemetryConfig holds the listen addresses. An empty address disables
// that server.
type TelemetryConfig struct {
	MetricsAddr string
	GRPCAddr    string
}

// Telemetry serves /metrics, /health and /debug/trials over HTTP and the
// standard gRPC health service.
type Telemetry struct {
	cfg     TelemetryConfig
	metrics http.Handler
	trials  TrialSource
	logger  pslog.Logger

	phase   atomic.Value
	started time.Time

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTelemetry creates the telemetry servers without starting them.
// metrics and trials may be nil.
func NewTelemetry(cfg TelemetryConfig, metrics http.Handler, trials TrialSource, logger pslog.Logger) *Telemetry {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	t := &Telemetry{
		cfg:     cfg,
		metrics: metrics,
		trials:  trials,
		logger:  logger,
		started: time.Now(),
	}
	t.phase.Store(PhaseStarting)
	return t
}

// Start binds the configured listeners and serves in the background. The
// telemetry closes itself when sm shuts down.
func (t *Telemetry) Start(sm *ShutdownManager) error {
	if t.cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", t.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		t.httpListener = ln
		t.httpServer = &http.Server{
			Handler:           ShutdownMiddleware(sm)(t.mux()),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.logger.Info("telemetry.http.listen", "addr", ln.Addr().String())
			if err := t.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				t.logger.Error("telemetry.http.error", "error", err.Error())
			}
		}()
	}

	if t.cfg.GRPCAddr != "" {
		ln, err := net.Listen("tcp", t.cfg.GRPCAddr)
		if err != nil {
			t.Close()
			return fmt.Errorf("failed to listen on gRPC address: %w", err)
		}
		t.grpcListener = ln
		t.grpcServer = grpc.NewServer()
		t.health = health.NewServer()
		healthpb.RegisterHealthServer(t.grpcServer, t.health)
		t.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.logger.Info("telemetry.grpc.listen", "addr", ln.Addr().String())
			if err := t.grpcServer.Serve(ln); err != nil {
				t.logger.Error("telemetry.grpc.error", "error", err.Error())
			}
		}()
	}

	if sm != nil {
		sm.RegisterCloser("telemetry", t)
	}
	return nil
}

// SetPhase records the run phase. The gRPC health service reports SERVING
// while trials run.
func (t *Telemetry) SetPhase(phase string) {
	t.phase.Store(phase)
	if t.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if phase == PhaseRunning || phase == PhasePreparing {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.health.SetServingStatus(HealthService, status)
}

// Phase returns the current run phase.
func (t *Telemetry) Phase() string {
	p, _ := t.phase.Load().(string)
	return p
}

// HTTPAddr returns the bound metrics address, or "" if disabled.
func (t *Telemetry) HTTPAddr() string {
	if t.httpListener == nil {
		return ""
	}
	return t.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" if disabled.
func (t *Telemetry) GRPCAddr() string {
	if t.grpcListener == nil {
		return ""
	}
	return t.grpcListener.Addr().String()
}

// Close stops both servers and waits for them to exit.
func (t *Telemetry) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.health != nil {
			t.health.Shutdown()
		}
		if t.grpcServer != nil {
			t.grpcServer.GracefulStop()
		}
		if t.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = t.httpServer.Shutdown(ctx)
			cancel()
		}
		t.wg.Wait()
	})
	return err
}

func (t *Telemetry) mux() *http.ServeMux {
	mux := http.NewServeMux()
	if t.metrics != nil {
		mux.Handle("/metrics", t.metrics)
	}
	mux.HandleFunc("/health", t.healthHandler)
	mux.HandleFunc("/debug/trials", t.trialsHandler)
	return mux
}

func (t *Telemetry) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": HealthService,
		"phase":   t.Phase(),
		"uptime":  time.Since(t.started).Round(time.Second).String(),
	})
}

func (t *Telemetry) trialsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	trials := []observability.TrialSummary{}
	if t.trials != nil {
		trials = t.trials.Trials()
	}
	writeJSON(w, http.StatusOK, map[string]any{"trials": trials})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
