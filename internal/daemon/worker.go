package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/rs/zerolog"
)

// TaskRunner runs one autonomous task
type TaskRunner interface {
	RunTask(ctx context.Context, goal string) (string, error)
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Lifecycle   *LifecycleManager
	Watchdog    *Watchdog
	Guard       *Guard
	Tasks       TaskRunner
	Goal        string
	MetricsAddr string
	Logger      zerolog.Logger
}

// Worker is the detached process body
type Worker struct {
	cfg WorkerConfig
}

// NewWorker creates a worker
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle manager is required")
	}
	if cfg.Watchdog == nil {
		return nil, fmt.Errorf("watchdog is required")
	}
	if cfg.Guard == nil {
		cfg.Guard = NewGuard(GuardConfig{Logger: cfg.Logger})
	}
	if strings.TrimSpace(cfg.Goal) != "" && cfg.Tasks == nil {
		return nil, fmt.Errorf("a goal needs a task runner")
	}
	return &Worker{cfg: cfg}, nil
}

// Run writes the PID file, starts the heartbeat, runs the goal if any and
// then stays alive until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.cfg.Logger

	if err := w.cfg.Lifecycle.Start(); err != nil {
		return err
	}
	defer func() {
		if err := w.cfg.Lifecycle.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
		}
	}()

	if err := w.cfg.Watchdog.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.cfg.Watchdog.Stop(stopCtx)
	}()

	if w.cfg.MetricsAddr != "" {
		srv, err := w.serveMetrics()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("Worker started")

	if goal := strings.TrimSpace(w.cfg.Goal); goal != "" {
		taskCtx := tracing.NewRequestContext(ctx)
		_ = w.cfg.Guard.Run(taskCtx, "worker.task", func(ctx context.Context) error {
			summary, err := w.cfg.Tasks.RunTask(ctx, goal)
			if err != nil {
				return err
			}
			logger.Info().Str("summary", summary).Msg("Worker task finished")
			return nil
		})
		w.cfg.Watchdog.Touch()
	}

	<-ctx.Done()
	logger.Info().Msg("Worker stopping")
	return nil
}

func (w *Worker) serveMetrics() (*http.Server, error) {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(rw, "ok %s\n", w.cfg.Watchdog.Last().UTC().Format(time.RFC3339))
	})

	ln, err := net.Listen("tcp", w.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", w.cfg.MetricsAddr, err)
	}

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.cfg.Logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	w.cfg.Logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return srv, nil
}
