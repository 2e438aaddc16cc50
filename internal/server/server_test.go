package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmlbench/dmlbench/internal/observability"
)

func TestShutdown_ClosersRunInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterCloser(fmt.Sprintf("c%d", i), CloserFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}

	var reason string
	sm.OnShutdownStart(func(r string) { reason = r })

	if err := sm.Shutdown(context.Background(), "run complete"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(order) != 3 || order[0] != 2 || order[2] != 0 {
		t.Errorf("expected LIFO close order, got %v", order)
	}
	if reason != "run complete" || sm.Reason() != "run complete" {
		t.Errorf("unexpected reason %q / %q", reason, sm.Reason())
	}
	if !sm.Stopping() {
		t.Error("expected shutting down")
	}

	select {
	case <-sm.Done():
	default:
		t.Error("shutdown channel should be closed")
	}
}

func TestShutdown_OnlyOnce(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	var calls atomic.Int32
	sm.RegisterCloser("store", CloserFunc(func() error {
		calls.Add(1)
		return errors.New("close boom")
	}))

	err := sm.Shutdown(context.Background(), "first")
	if err == nil || !strings.Contains(err.Error(), "store: close boom") {
		t.Errorf("expected named closer error, got %v", err)
	}
	if err := sm.Shutdown(context.Background(), "second"); err != nil {
		t.Errorf("second shutdown should be a no-op, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected closer called once, got %d", calls.Load())
	}
	if sm.Reason() != "first" {
		t.Errorf("reason should stay %q, got %q", "first", sm.Reason())
	}
}

func TestShutdown_ListenReturnsOnContextCancel(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sm.ListenForSignals(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenForSignals did not return")
	}
	if sm.Reason() != "context cancelled" {
		t.Errorf("unexpected reason %q", sm.Reason())
	}
}

func TestShutdownMiddleware_RejectsDuringShutdown(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.ActiveScrapes() != 1 {
			t.Errorf("expected 1 in-flight request, got %d", sm.ActiveScrapes())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	sm.Shutdown(context.Background(), "test")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 during shutdown, got %d", rec.Code)
	}
}

func TestTelemetry_HTTPAndGRPC(t *testing.T) {
	stats := observability.NewTrialStats(0)
	stats.RecordTrial(observability.TrialSummary{Operation: "insert", Mode: "optimistic", TotalOps: 42})
	collectors := observability.NewCollectors(stats)

	sm := NewShutdownManager(DefaultShutdownConfig())
	tel := NewTelemetry(TelemetryConfig{
		MetricsAddr: "127.0.0.1:0",
		GRPCAddr:    "127.0.0.1:0",
	}, collectors.Handler(), stats, nil)
	if err := tel.Start(sm); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sm.Shutdown(context.Background(), "test done")

	base := "http://" + tel.HTTPAddr()

	tel.SetPhase(PhaseRunning)
	var health map[string]any
	getJSON(t, base+"/health", &health)
	if health["phase"] != PhaseRunning {
		t.Errorf("expected phase %q, got %v", PhaseRunning, health["phase"])
	}

	var trials struct {
		Trials []observability.TrialSummary `json:"trials"`
	}
	getJSON(t, base+"/debug/trials", &trials)
	if len(trials.Trials) != 1 || trials.Trials[0].TotalOps != 42 {
		t.Errorf("unexpected trials %+v", trials.Trials)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(tel.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)

	res, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING while running, got %v", res.GetStatus())
	}

	tel.SetPhase(PhaseDone)
	res, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING when done, got %v", res.GetStatus())
	}
}

func TestTelemetry_DisabledAddresses(t *testing.T) {
	tel := NewTelemetry(TelemetryConfig{}, nil, nil, nil)
	if err := tel.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if tel.HTTPAddr() != "" || tel.GRPCAddr() != "" {
		t.Error("no listeners expected")
	}
	tel.SetPhase(PhaseRunning)
	if err := tel.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
