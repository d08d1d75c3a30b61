package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harun/orca/pkg/browser"
	"github.com/harun/orca/pkg/coretools"
	"github.com/harun/orca/pkg/gateway"
	"github.com/harun/orca/pkg/sandbox"
	"github.com/harun/orca/pkg/session"
	"github.com/harun/orca/pkg/toolclient"
)

// Gateway answers the session's conversation
type Gateway interface {
	Complete(ctx context.Context, sess *session.Session) (string, error)
	Providers() []gateway.Provider
}

// TaskRunner runs an autonomous task and summarizes the outcome
type TaskRunner interface {
	RunTask(ctx context.Context, goal string) (string, error)
}

// Reporter is where user-visible output goes
type Reporter interface {
	Output(text string)
	Info(msg string)
	Error(msg string)
}

// Settings are static knobs handlers read
type Settings struct {
	Prefix         string
	AttachMaxBytes int64
	ScreenshotDir  string
	SearchEngine   string
	ShellTimeout   time.Duration
	// CredentialSources maps provider names to where their key came from
	CredentialSources map[string]string
}

// Env is the explicit context every handler receives
type Env struct {
	Session  *session.Session
	Gateway  Gateway
	Tools    *toolclient.Client
	Files    *coretools.Files
	Shell    *sandbox.Host
	Browser  browser.Browser
	Tasks    TaskRunner
	Confirm  Confirmer
	Report   Reporter
	Commands *Registry
	Settings Settings
}

// Out returns the reporter, discarding output when none is set
func (e *Env) Out() Reporter {
	if e.Report == nil {
		return DiscardReporter{}
	}
	return e.Report
}

func (e *Env) browser() (browser.Browser, error) {
	if e.Browser == nil {
		return nil, fmt.Errorf("browser capability is not configured")
	}
	return e.Browser, nil
}

// WriterReporter prints output and info to Out and errors to Err
type WriterReporter struct {
	Out io.Writer
	Err io.Writer
	mu  sync.Mutex
}

// Output prints text as-is
func (w *WriterReporter) Output(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.Out, text)
}

// Info prints a status line
func (w *WriterReporter) Info(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.Out, msg)
}

// Error prints a single error line
func (w *WriterReporter) Error(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.Err
	if out == nil {
		out = w.Out
	}
	fmt.Fprintln(out, "error: "+msg)
}

// DiscardReporter drops everything
type DiscardReporter struct{}

func (DiscardReporter) Output(string) {}
func (DiscardReporter) Info(string)   {}
func (DiscardReporter) Error(string)  {}
