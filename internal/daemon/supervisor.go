package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
)

// WorkerFlag marks the detached child process
const WorkerFlag = "--worker"

// SupervisorConfig holds supervisor configuration
type SupervisorConfig struct {
	Executable string // current executable when empty
	LogFile    string
	Logger     zerolog.Logger
}

// Supervisor spawns the detached worker
type Supervisor struct {
	exe     string
	logFile string
	logger  zerolog.Logger
}

// NewSupervisor creates a supervisor
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	exe := cfg.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
	}
	if cfg.LogFile == "" {
		return nil, fmt.Errorf("log file is required")
	}
	return &Supervisor{exe: exe, logFile: cfg.LogFile, logger: cfg.Logger}, nil
}

// Detach starts the same executable with args plus WorkerFlag in a new
// session, stdio redirected to the log file, and returns without waiting.
func (s *Supervisor) Detach(args []string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(s.logFile), 0755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(s.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(s.exe, WorkerArgs(args)...)
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start worker: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		s.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to release worker process")
	}

	s.logger.Info().Int("pid", pid).Str("log_file", s.logFile).Msg("Worker detached")
	return pid, nil
}

// WorkerArgs appends WorkerFlag unless already present
func WorkerArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == WorkerFlag {
			continue
		}
		out = append(out, a)
	}
	return append(out, WorkerFlag)
}
