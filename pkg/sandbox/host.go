// Package sandbox runs shell commands for the exec command. Despite the
// name it does not isolate anything; commands run on the host.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultMaxOutput caps combined output kept per command
const DefaultMaxOutput = 10 * 1024

// Config holds shell execution settings
type Config struct {
	Shell     string        // interpreter, "sh" when empty
	Dir       string        // default working directory
	Timeout   time.Duration // default per-command timeout
	Env       []string      // extra KEY=VALUE pairs
	MaxOutput int
	Logger    zerolog.Logger
}

// ExecuteRequest is a single command line to run
type ExecuteRequest struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// ExecuteResult is the outcome of a command
type ExecuteResult struct {
	Output    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Host executes commands through the configured shell
type Host struct {
	config Config
}

// NewHost creates a host executor
func NewHost(cfg Config) *Host {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	return &Host{config: cfg}
}

// Execute runs req.Command with "<shell> -c". A non-zero exit is reported
// in the result, not as an error.
func (h *Host) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = h.config.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, h.config.Shell, "-c", req.Command)
	cmd.Dir = req.Dir
	if cmd.Dir == "" {
		cmd.Dir = h.config.Dir
	}
	cmd.Env = append(os.Environ(), h.config.Env...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	output, truncated := truncate(out.String(), h.config.MaxOutput)
	result := ExecuteResult{
		Output:    output,
		Duration:  duration,
		Truncated: truncated,
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to run command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	h.config.Logger.Debug().
		Str("command", req.Command).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Command executed")

	return result, nil
}

// Format renders a result the way it is shown to the model
func (r ExecuteResult) Format(command string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\n", command)
	if r.Output != "" {
		b.WriteString(r.Output)
		if !strings.HasSuffix(r.Output, "\n") {
			b.WriteByte('\n')
		}
	}
	if r.Truncated {
		b.WriteString("[output truncated]\n")
	}
	fmt.Fprintf(&b, "[exit code %d]", r.ExitCode)
	return b.String()
}

func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit], true
}
