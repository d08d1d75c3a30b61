// Package app assembles one orca session and its collaborators from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/orca/internal/config"
	"github.com/harun/orca/internal/logger"
	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/pkg/agent"
	"github.com/harun/orca/pkg/browser"
	"github.com/harun/orca/pkg/commandqueue"
	"github.com/harun/orca/pkg/commands"
	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/coretools"
	"github.com/harun/orca/pkg/errpolicy"
	"github.com/harun/orca/pkg/gateway"
	"github.com/harun/orca/pkg/sandbox"
	"github.com/harun/orca/pkg/session"
	"github.com/harun/orca/pkg/toolclient"
	"github.com/rs/zerolog"
)

// Options adjust how the app is built
type Options struct {
	ConfigPath string
	LogLevel   string // overrides logging.level when set
	Mode       string // overrides providers.default_mode when set
	MaxSteps   int    // overrides agent.max_steps when positive

	// ConsoleLogs also writes logs to stderr. Interactive sessions keep
	// the terminal for the conversation and log to the file only.
	ConsoleLogs bool

	Confirm commands.Confirmer // DenyAll when nil
	Report  commands.Reporter  // discarded when nil

	// CredentialLayers replaces the default .env search path
	CredentialLayers []config.Layer
	// Backends replaces the SDK-backed providers, keyed by provider name
	Backends map[string]gateway.Backend
}

// App is one fully wired session
type App struct {
	Config      *config.Config
	Logger      *logger.Logger
	Credentials *config.Credentials
	Policy      errpolicy.Table

	Session    *session.Session
	Gateway    *gateway.Gateway
	Queue      *commandqueue.Queue
	Dispatcher *commands.Dispatcher
	Loop       *agent.Loop
	Browser    browser.Browser

	closers []io.Closer
}

// New loads configuration and builds the app
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.Mode != "" {
		cfg.Providers.DefaultMode = opts.Mode
	}
	if opts.MaxSteps > 0 {
		cfg.Agent.MaxSteps = opts.MaxSteps
	}
	return Build(ctx, cfg, opts)
}

// Build wires an app from an already loaded config
func Build(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   opts.ConsoleLogs,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	}

	a.Policy, err = cfg.Policy()
	if err != nil {
		return nil, err
	}

	layers := opts.CredentialLayers
	if layers == nil {
		layers = config.DefaultLayers()
	}
	a.Credentials, err = config.ResolveCredentials(layers)
	if err != nil {
		return nil, err
	}

	primary, err := a.provider(ctx, cfg.Providers.Primary, opts)
	if err != nil {
		return nil, err
	}
	secondary, err := a.provider(ctx, cfg.Providers.Secondary, opts)
	if err != nil {
		return nil, err
	}

	clearPolicy, err := gateway.ParseClearPolicy(cfg.Attachments.ClearPolicy)
	if err != nil {
		return nil, err
	}
	a.Gateway, err = gateway.New(gateway.Config{
		Primary:     primary,
		Secondary:   secondary,
		Policy:      a.Policy,
		ClearPolicy: clearPolicy,
		MaxTokens:   cfg.Providers.MaxTokens,
		Temperature: cfg.Providers.Temperature,
		Logger:      log.Component("gateway"),
	})
	if err != nil {
		return nil, err
	}

	if err := a.buildSession(); err != nil {
		return nil, err
	}
	if err := a.buildDispatch(opts); err != nil {
		return nil, err
	}

	log.Info().
		Str("primary", primary.Name).
		Bool("primary_available", primary.Available).
		Str("secondary", secondary.Name).
		Bool("secondary_available", secondary.Available).
		Str("mode", string(a.Session.Mode())).
		Int("turns", a.Session.Conversation.Len()).
		Msg("Session ready")

	return a, nil
}

// provider builds one gateway provider. Without a credential it is kept
// but marked unavailable.
func (a *App) provider(ctx context.Context, name string, opts Options) (gateway.Provider, error) {
	p := gateway.Provider{Name: name, Model: a.Config.Providers.Model(name)}

	if b, ok := opts.Backends[name]; ok {
		p.Backend = b
		p.Available = b != nil
		return p, nil
	}

	key := a.Credentials.ForProvider(name)
	if key == "" {
		a.Logger.Warn().Str("provider", name).Str("key", config.KeyFor(name)).Msg("No credential, provider unavailable")
		return p, nil
	}

	backend, err := gateway.NewBackend(ctx, gateway.BackendConfig{
		Name:   name,
		APIKey: key,
		Logger: a.Logger.Component("gateway." + name),
	})
	if err != nil {
		return p, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	if c, ok := backend.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	p.Backend = backend
	p.Available = true
	return p, nil
}

func (a *App) buildSession() error {
	cfg := a.Config

	conv, err := conversation.Open(cfg.ConversationPath(), a.Logger.Component("conversation"))
	if err != nil {
		return err
	}

	mode, err := session.ParseMode(cfg.Providers.DefaultMode)
	if err != nil {
		return err
	}

	tools := toolclient.NewRegistry()
	for _, s := range cfg.Tools.Servers {
		if err := tools.Add(s.Label, s.URL); err != nil {
			return fmt.Errorf("tool server %s: %w", s.Label, err)
		}
	}

	a.Session = session.New(conv, tools, mode)
	return nil
}

func (a *App) buildDispatch(opts Options) error {
	cfg := a.Config

	client, err := toolclient.New(toolclient.Config{
		Timeout: seconds(cfg.Tools.Timeout),
		Logger:  a.Logger.Component("toolclient"),
	})
	if err != nil {
		return err
	}

	files, err := coretools.NewFiles("")
	if err != nil {
		return err
	}

	shell := sandbox.NewHost(sandbox.Config{
		Shell:     cfg.Shell.Shell,
		Dir:       files.Root,
		Timeout:   seconds(cfg.Shell.Timeout),
		MaxOutput: cfg.Shell.MaxOutput,
		Logger:    a.Logger.Component("shell"),
	})

	rod := browser.NewRod(browser.Config{
		Headless: cfg.Browser.Headless,
		Bin:      cfg.Browser.Bin,
		Timeout:  seconds(cfg.Browser.Timeout),
		Logger:   a.Logger.Component("browser"),
	})
	a.Browser = rod
	a.closers = append(a.closers, rod)

	a.Queue = commandqueue.New(commandqueue.Config{Logger: a.Logger.Component("queue")})

	registry, err := commands.NewBuiltinRegistry()
	if err != nil {
		return err
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = commands.DenyAll{}
	}

	env := &commands.Env{
		Session: a.Session,
		Gateway: a.Gateway,
		Tools:   client,
		Files:   files,
		Shell:   shell,
		Browser: rod,
		Confirm: confirm,
		Report:  opts.Report,
		Settings: commands.Settings{
			AttachMaxBytes:    cfg.Attachments.MaxBytes,
			ScreenshotDir:     cfg.Browser.ScreenshotDir,
			SearchEngine:      cfg.Browser.SearchEngine,
			ShellTimeout:      seconds(cfg.Shell.Timeout),
			CredentialSources: a.Credentials.Sources(),
		},
	}

	a.Dispatcher, err = commands.NewDispatcher(commands.DispatcherConfig{
		Registry: registry,
		Queue:    a.Queue,
		Env:      env,
		Prefix:   cfg.Commands.Prefix,
		Policy:   a.Policy,
		Logger:   a.Logger.Component("dispatcher"),
	})
	if err != nil {
		return err
	}

	a.Loop, err = agent.New(agent.Config{
		Dispatcher:      a.Dispatcher,
		MaxSteps:        cfg.Agent.MaxSteps,
		CompletionToken: cfg.Agent.CompletionToken,
		Policy:          a.Policy,
		Logger:          a.Logger.Component("agent"),
	})
	if err != nil {
		return err
	}
	env.Tasks = a.Loop
	return nil
}

// Component returns a named child logger
func (a *App) Component(name string) zerolog.Logger {
	return a.Logger.Component(name)
}

// Close releases the browser, backends, queue and log file
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil && !errors.Is(err, commandqueue.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := observability.GetAuditLogger().Close(); err != nil {
		errs = append(errs, err)
	}
	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
