package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// LifecycleManager manages the worker PID file
type LifecycleManager struct {
	pidFile string
	logger  zerolog.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(pidFile string, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		pidFile: pidFile,
		logger:  logger,
	}
}

// PIDFile returns the PID file path
func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// Start writes the current PID. It fails when another live worker owns
// the file.
func (l *LifecycleManager) Start() error {
	if pid, err := l.GetPID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("worker already running (pid %d)", pid)
	}

	if err := os.MkdirAll(filepath.Dir(l.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := l.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	l.logger.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")

	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	l.logger.Info().Msg("Lifecycle manager stopped")

	return nil
}

func (l *LifecycleManager) writePIDFile() error {
	content := fmt.Sprintf("%d", os.Getpid())
	return os.WriteFile(l.pidFile, []byte(content), 0644)
}

// GetPID returns the worker PID from the PID file
func (l *LifecycleManager) GetPID() (int, error) {
	data, err := os.ReadFile(l.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}

	return pid, nil
}

// IsRunning checks if the recorded worker is alive
func (l *LifecycleManager) IsRunning() bool {
	pid, err := l.GetPID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Terminate sends SIGTERM to the recorded worker
func (l *LifecycleManager) Terminate() (int, error) {
	pid, err := l.GetPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !processAlive(pid) {
		_ = os.Remove(l.pidFile)
		return pid, ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("failed to signal worker %d: %w", pid, err)
	}
	return pid, nil
}

// ErrNotRunning is returned when no live worker owns the PID file
var ErrNotRunning = errors.New("worker is not running")

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}

// Status is what `orca status` reports
type Status struct {
	Running       bool
	PID           int
	LastHeartbeat time.Time
}

// ReadStatus inspects the PID and heartbeat files
func ReadStatus(pidFile, heartbeatFile string) Status {
	lm := NewLifecycleManager(pidFile, zerolog.Nop())

	var st Status
	if pid, err := lm.GetPID(); err == nil {
		st.PID = pid
		st.Running = processAlive(pid)
	}
	if at, err := ReadHeartbeat(heartbeatFile); err == nil {
		st.LastHeartbeat = at
	}
	return st
}
