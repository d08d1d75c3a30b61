package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/commands"
	"github.com/harun/orca/pkg/errpolicy"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultMaxSteps bounds a task when no limit is configured
	DefaultMaxSteps = 10
	// DefaultCompletionToken is the reply that ends a task successfully
	DefaultCompletionToken = "TASK_COMPLETE"
)

// State is where a task is in its lifecycle
type State string

const (
	StateStart    State = "START"
	StateStep     State = "STEP"
	StateDone     State = "DONE"
	StateAborted  State = "ABORTED"
	StateMaxSteps State = "MAX_STEPS_REACHED"
)

// Result is the outcome of one task
type Result struct {
	TaskID   string
	Goal     string
	Steps    int
	State    State
	Err      error
	Duration time.Duration
}

// Summary renders the result as one line
func (r Result) Summary() string {
	s := fmt.Sprintf("Task %s finished: %s after %d step(s)", r.TaskID, r.State, r.Steps)
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}

// Config holds loop configuration
type Config struct {
	Dispatcher      *commands.Dispatcher
	AllowList       *commands.AllowList // loop-marked commands when nil
	MaxSteps        int
	CompletionToken string
	Policy          errpolicy.Table
	Logger          zerolog.Logger
}

// Loop drives the model one command at a time towards a goal
type Loop struct {
	dispatcher *commands.Dispatcher
	allow      *commands.AllowList
	maxSteps   int
	token      string
	policy     errpolicy.Table
	logger     zerolog.Logger
}

// New creates a loop controller
func New(cfg Config) (*Loop, error) {
	observability.EnsureRegistered()

	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	env := cfg.Dispatcher.Env()
	if env.Gateway == nil {
		return nil, fmt.Errorf("dispatcher env has no gateway")
	}

	allow := cfg.AllowList
	if allow == nil {
		var err error
		allow, err = commands.LoopAllowList(env.Commands)
		if err != nil {
			return nil, fmt.Errorf("failed to build allow-list: %w", err)
		}
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if strings.TrimSpace(cfg.CompletionToken) == "" {
		cfg.CompletionToken = DefaultCompletionToken
	}
	if cfg.Policy == nil {
		cfg.Policy = errpolicy.Default()
	}

	return &Loop{
		dispatcher: cfg.Dispatcher,
		allow:      allow,
		maxSteps:   cfg.MaxSteps,
		token:      strings.TrimSpace(cfg.CompletionToken),
		policy:     cfg.Policy,
		logger:     cfg.Logger,
	}, nil
}

// MaxSteps returns the step bound
func (l *Loop) MaxSteps() int {
	return l.maxSteps
}

// RunTask runs goal and returns a one-line summary. It lets the loop serve
// as the /task capability.
func (l *Loop) RunTask(ctx context.Context, goal string) (string, error) {
	res, err := l.Run(ctx, goal)
	if err != nil {
		return "", fmt.Errorf("task %s aborted after %d step(s): %w", res.TaskID, res.Steps, err)
	}
	return res.Summary(), nil
}

// Run executes one task. A provider failure ends the task as ABORTED and
// its error is returned; running out of steps is not an error.
func (l *Loop) Run(ctx context.Context, goal string) (Result, error) {
	taskID, err := gonanoid.New()
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate task id: %w", err)
	}

	ctx = tracing.EnsureTraceID(ctx)
	ctx = tracing.WithTaskID(ctx, taskID)
	ctx, span := tracing.StartSpan(
		ctx,
		"orca.agent",
		"agent.run",
		attribute.Int("max_steps", l.maxSteps),
	)
	defer span.End()

	res := Result{TaskID: taskID, Goal: goal, State: StateStart}
	start := time.Now()

	qerr := l.dispatcher.Exclusive(ctx, func(ctx context.Context) error {
		l.run(ctx, &res)
		return nil
	})
	if qerr != nil && res.Err == nil {
		res.State = StateAborted
		res.Err = qerr
	}

	res.Duration = time.Since(start)
	observability.RecordAgentTask(string(res.State), res.Steps, res.Duration)
	span.SetAttributes(
		attribute.String("state", string(res.State)),
		attribute.Int("steps", res.Steps),
	)

	logger := tracing.LoggerFromContext(ctx, l.logger)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		logger.Warn().Str("state", string(res.State)).Int("steps", res.Steps).Err(res.Err).Msg("Task ended")
		return res, res.Err
	}
	logger.Info().Str("state", string(res.State)).Int("steps", res.Steps).Dur("duration", res.Duration).Msg("Task ended")
	return res, nil
}

func (l *Loop) run(ctx context.Context, res *Result) {
	env := l.dispatcher.Env()
	sess := env.Session
	logger := tracing.LoggerFromContext(ctx, l.logger)

	if err := sess.Conversation.AppendUser(ctx, l.prompt(res.Goal)); err != nil {
		res.State = StateAborted
		res.Err = err
		return
	}

	for res.Steps < l.maxSteps {
		if err := ctx.Err(); err != nil {
			res.State = StateAborted
			res.Err = err
			return
		}

		res.State = StateStep
		res.Steps++

		reply, err := env.Gateway.Complete(ctx, sess)
		if err != nil {
			if ctx.Err() == nil && l.policy.For(errpolicy.AgentLoop).Action == errpolicy.Continue {
				logger.Warn().Int("step", res.Steps).Err(err).Msg("Provider failed, continuing")
				continue
			}
			res.State = StateAborted
			res.Err = err
			return
		}

		trimmed := strings.TrimSpace(reply)
		if strings.EqualFold(trimmed, l.token) {
			res.State = StateDone
			return
		}

		line := firstLine(trimmed)
		if !l.dispatcher.IsCommand(line) {
			logger.Debug().Int("step", res.Steps).Msg("Reply is not a command, nothing executed")
			continue
		}

		env.Out().Info(fmt.Sprintf("[%s %d/%d] %s", res.TaskID, res.Steps, l.maxSteps, line))
		if err := l.dispatcher.DispatchAllowed(ctx, line, l.allow); err != nil {
			res.State = StateAborted
			res.Err = err
			return
		}
	}

	res.State = StateMaxSteps
}

func (l *Loop) prompt(goal string) string {
	prefix := l.dispatcher.Prefix()

	var b strings.Builder
	fmt.Fprintf(&b, "You are working on an autonomous task.\nGoal: %s\n\n", goal)
	b.WriteString("You can use these commands:\n")
	b.WriteString(l.allow.Describe(prefix))
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, "- Reply with exactly one command per turn, starting with %q. Only the first line of a reply is run.\n", prefix)
	b.WriteString("- Command results come back to you as SYSTEM INFO messages.\n")
	fmt.Fprintf(&b, "- When the goal is achieved, reply with exactly %s.", l.token)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
