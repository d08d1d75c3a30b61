package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/commandqueue"
	"github.com/harun/orca/pkg/errpolicy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultPrefix marks a line as a command
const DefaultPrefix = "/"

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Registry *Registry
	Queue    *commandqueue.Queue
	Env      *Env
	Prefix   string
	Policy   errpolicy.Table
	Logger   zerolog.Logger
}

// Dispatcher parses input lines and runs them on the main lane
type Dispatcher struct {
	registry *Registry
	queue    *commandqueue.Queue
	env      *Env
	prefix   string
	policy   errpolicy.Table
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. The env's Commands and Settings.Prefix
// are filled in from the dispatcher configuration.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Env == nil || cfg.Env.Session == nil {
		return nil, fmt.Errorf("env with a session is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Policy == nil {
		cfg.Policy = errpolicy.Default()
	}

	cfg.Env.Commands = cfg.Registry
	cfg.Env.Settings.Prefix = cfg.Prefix

	observability.EnsureRegistered()

	return &Dispatcher{
		registry: cfg.Registry,
		queue:    cfg.Queue,
		env:      cfg.Env,
		prefix:   cfg.Prefix,
		policy:   cfg.Policy,
		logger:   cfg.Logger,
	}, nil
}

// Prefix returns the command prefix
func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// Env returns the handler environment
func (d *Dispatcher) Env() *Env {
	return d.env
}

// IsCommand reports whether line starts with the prefix
func (d *Dispatcher) IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), d.prefix)
}

// Dispatch handles one line of operator input. Commands run their handler;
// other text is a chat turn. Failures are reported and swallowed, so the
// only errors returned are ErrExit, cancellation and errors the dispatch
// policy says to abort on.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !d.IsCommand(line) {
		return d.queue.Enqueue(ctx, commandqueue.MainLane, func(ctx context.Context) error {
			return d.chat(ctx, line)
		})
	}

	name, args := d.parse(line)
	return d.queue.Enqueue(ctx, commandqueue.MainLane, func(ctx context.Context) error {
		desc, ok := d.registry.Lookup(name)
		if !ok {
			d.unknown(name)
			return nil
		}
		return d.run(ctx, desc, desc.Handler, args)
	})
}

// DispatchAllowed runs a command line restricted to allow. Lines without
// the prefix are ignored; commands outside the list are reported like
// unknown ones.
func (d *Dispatcher) DispatchAllowed(ctx context.Context, line string, allow *AllowList) error {
	line = strings.TrimSpace(line)
	if !d.IsCommand(line) {
		return nil
	}

	name, args := d.parse(line)
	return d.queue.Enqueue(ctx, commandqueue.MainLane, func(ctx context.Context) error {
		desc, action, ok := allow.lookup(name)
		if !ok {
			if _, known := d.registry.Lookup(name); known {
				observability.RecordDispatch(name, false)
				d.env.Out().Error(fmt.Sprintf("%s%s is not available to autonomous tasks", d.prefix, name))
				return nil
			}
			d.unknown(name)
			return nil
		}
		return d.run(ctx, desc, action, args)
	})
}

func (d *Dispatcher) parse(line string) (string, []string) {
	fields := strings.Fields(line)
	return strings.TrimPrefix(fields[0], d.prefix), fields[1:]
}

func (d *Dispatcher) unknown(name string) {
	observability.RecordDispatch("unknown", false)
	d.env.Out().Error(fmt.Sprintf("unknown command: %s%s (try %shelp)", d.prefix, name, d.prefix))
}

func (d *Dispatcher) run(ctx context.Context, desc Descriptor, handler Handler, args []string) error {
	if !desc.Accepts(len(args)) {
		observability.RecordDispatch(desc.Name, false)
		d.env.Out().Error("usage: " + desc.Syntax(d.prefix))
		return nil
	}

	ctx = tracing.WithCommand(ctx, d.prefix+desc.Name)
	ctx, span := tracing.StartSpan(
		ctx,
		"orca.commands",
		"commands.dispatch",
		attribute.String("command", desc.Name),
		attribute.Int("args", len(args)),
	)
	defer span.End()

	err := handler.handle(ctx, d.env, args)
	if errors.Is(err, ErrExit) {
		observability.RecordDispatch(desc.Name, true)
		return err
	}
	observability.RecordDispatch(desc.Name, err == nil)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger := tracing.LoggerFromContext(ctx, d.logger)
	logger.Debug().Str("command", desc.Name).Err(err).Msg("Command failed")
	d.env.Out().Error(fmt.Sprintf("%s: %v", desc.Name, err))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.policy.For(errpolicy.Dispatch).Action == errpolicy.Abort {
		return err
	}
	return nil
}

// chat appends a user turn and reports the model's answer
func (d *Dispatcher) chat(ctx context.Context, text string) error {
	sess := d.env.Session
	if err := sess.Conversation.AppendUser(ctx, text); err != nil {
		d.env.Out().Error(err.Error())
		return nil
	}
	if d.env.Gateway == nil {
		d.env.Out().Error("no provider gateway configured")
		return nil
	}

	reply, err := d.env.Gateway.Complete(ctx, sess)
	if err != nil {
		observability.RecordDispatch("chat", false)
		d.env.Out().Error(oneLine(err.Error()))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	observability.RecordDispatch("chat", true)
	d.env.Out().Output(reply)
	return nil
}

func oneLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Exclusive runs fn on the main lane, inline when already inside a dispatch
func (d *Dispatcher) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.queue.Enqueue(ctx, commandqueue.MainLane, fn)
}
