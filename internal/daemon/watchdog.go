package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultHeartbeat is the heartbeat schedule when none is configured
const DefaultHeartbeat = "@every 30s"

// WatchdogConfig holds watchdog configuration
type WatchdogConfig struct {
	Path     string // heartbeat file, empty to keep it in memory
	Schedule string
	Guard    *Guard
	Logger   zerolog.Logger
}

// Watchdog keeps the liveness timestamp. It is touched on every processed
// input and by a periodic cron job that also writes it to disk.
type Watchdog struct {
	path     string
	schedule string
	guard    *Guard
	logger   zerolog.Logger

	cron *cron.Cron
	last time.Time
	mu   sync.Mutex
}

// NewWatchdog creates a watchdog
func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultHeartbeat
	}
	if cfg.Guard == nil {
		cfg.Guard = NewGuard(GuardConfig{Logger: cfg.Logger})
	}
	return &Watchdog{
		path:     cfg.Path,
		schedule: cfg.Schedule,
		guard:    cfg.Guard,
		logger:   cfg.Logger,
	}
}

// Touch records a heartbeat now
func (w *Watchdog) Touch() time.Time {
	now := time.Now()
	w.mu.Lock()
	w.last = now
	w.mu.Unlock()
	observability.SetHeartbeat(now)
	return now
}

// Last returns the last heartbeat
func (w *Watchdog) Last() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start schedules the heartbeat job and beats once
func (w *Watchdog) Start() error {
	w.mu.Lock()
	if w.cron != nil {
		w.mu.Unlock()
		return fmt.Errorf("watchdog already started")
	}
	c := cron.New()
	w.cron = c
	w.mu.Unlock()

	if _, err := c.AddFunc(w.schedule, func() {
		_ = w.guard.Run(context.Background(), "heartbeat", func(context.Context) error {
			return w.Beat()
		})
	}); err != nil {
		return fmt.Errorf("invalid heartbeat schedule %q: %w", w.schedule, err)
	}

	if err := w.Beat(); err != nil {
		return err
	}
	c.Start()

	w.logger.Info().Str("schedule", w.schedule).Str("path", w.path).Msg("Watchdog started")
	return nil
}

// Beat touches the heartbeat and writes it to the heartbeat file
func (w *Watchdog) Beat() error {
	at := w.Touch()
	if w.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create heartbeat directory: %w", err)
	}
	if err := os.WriteFile(w.path, []byte(at.UTC().Format(time.RFC3339Nano)), 0644); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// Stop halts the schedule and waits for a running beat
func (w *Watchdog) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	w.logger.Info().Msg("Watchdog stopped")
}

// ReadHeartbeat parses a heartbeat file
func ReadHeartbeat(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid heartbeat file: %w", err)
	}
	return at, nil
}
