// Package server runs the benchmark's side servers: the telemetry endpoints
// scraped while trials run, and the shutdown manager that stops the run and
// closes everything on a signal or when the run completes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pkt.systems/pslog"
)

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// Timeout bounds the whole shutdown. Default: 30 seconds
	Timeout time.Duration

	// ScrapeGrace bounds waiting for telemetry requests that were already
	// being served. Default: 5 seconds
	ScrapeGrace time.Duration

	Logger pslog.Logger
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout:     30 * time.Second,
		ScrapeGrace: 5 * time.Second,
	}
}

type namedCloser struct {
	name string
	io.Closer
}

// ShutdownManager stops a benchmark session exactly once: it cancels the
// running trial through the start hooks, lets in-progress scrapes finish
// and closes the registered resources newest first.
type ShutdownManager struct {
	cfg    ShutdownConfig
	logger pslog.Logger

	mu       sync.Mutex
	stopping bool
	reason   string
	scrapes  sync.WaitGroup
	active   int
	closers  []namedCloser
	hooks    []func(reason string)

	once sync.Once
	done chan struct{}
}

// NewShutdownManager creates a new shutdown manager with the given configuration.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ScrapeGrace <= 0 {
		cfg.ScrapeGrace = def.ScrapeGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &ShutdownManager{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// RegisterCloser adds a resource closed during shutdown. Resources close in
// reverse registration order, so the store outlives the telemetry that
// reports on it.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// OnShutdownStart registers a hook run when shutdown begins, before any
// resource closes.
func (sm *ShutdownManager) OnShutdownStart(fn func(reason string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, fn)
}

// ListenForSignals blocks until SIGTERM or SIGINT, ctx cancellation, or a
// shutdown started elsewhere. A signal starts shutdown.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(ctx, fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown stops the session. Only the first call does any work; the error
// joins every resource that failed to close.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var err error
	sm.once.Do(func() {
		err = sm.shutdown(ctx, reason)
	})
	return err
}

func (sm *ShutdownManager) shutdown(ctx context.Context, reason string) error {
	sm.mu.Lock()
	sm.stopping = true
	sm.reason = reason
	hooks := append([]func(string){}, sm.hooks...)
	closers := append([]namedCloser{}, sm.closers...)
	sm.mu.Unlock()
	close(sm.done)

	sm.logger.Info("shutdown.begin", "reason", reason, "closers", len(closers))
	for _, fn := range hooks {
		fn(reason)
	}

	ctx, cancel := context.WithTimeout(ctx, sm.cfg.Timeout)
	defer cancel()

	var errs []error
	if err := sm.waitScrapes(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: not closed: %w", c.name, ctx.Err()))
			continue
		}
		if err := c.Close(); err != nil {
			sm.logger.Warn("shutdown.close.failed", "resource", c.name, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		sm.logger.Debug("shutdown.closed", "resource", c.name)
	}
	return errors.Join(errs...)
}

func (sm *ShutdownManager) waitScrapes(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		sm.scrapes.Wait()
		close(finished)
	}()

	grace := time.NewTimer(sm.cfg.ScrapeGrace)
	defer grace.Stop()
	select {
	case <-finished:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}
	return fmt.Errorf("gave up on %d telemetry requests", sm.ActiveScrapes())
}

// beginScrape admits a telemetry request unless shutdown has started.
func (sm *ShutdownManager) beginScrape() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopping {
		return false
	}
	sm.active++
	sm.scrapes.Add(1)
	return true
}

func (sm *ShutdownManager) endScrape() {
	sm.mu.Lock()
	sm.active--
	sm.mu.Unlock()
	sm.scrapes.Done()
}

// ActiveScrapes returns the number of telemetry requests being served.
func (sm *ShutdownManager) ActiveScrapes() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Stopping reports whether shutdown has started.
func (sm *ShutdownManager) Stopping() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.stopping
}

// Reason returns why shutdown started, or "" if it has not.
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// ShutdownMiddleware counts telemetry requests so shutdown can let them
// finish, and turns new ones away once shutdown has started.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.beginScrape() {
				w.Header().Set("Connection", "close")
				http.Error(w, "benchmark is shutting down", http.StatusServiceUnavailable)
				return
			}
			defer sm.endScrape()
			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
