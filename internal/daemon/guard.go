package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/errpolicy"
	"github.com/rs/zerolog"
)

// Guard is the top-level crash guard. It recovers panics and decides,
// from the process rule of the error-policy table, whether an escaped
// error is swallowed or returned.
type Guard struct {
	rule        errpolicy.Rule
	passthrough []error
	logger      zerolog.Logger
}

// GuardConfig holds guard configuration
type GuardConfig struct {
	Policy errpolicy.Table
	// Passthrough errors are always returned, e.g. the exit sentinel
	Passthrough []error
	Logger      zerolog.Logger
}

// NewGuard creates a guard
func NewGuard(cfg GuardConfig) *Guard {
	policy := cfg.Policy
	if policy == nil {
		policy = errpolicy.Default()
	}
	return &Guard{
		rule:        policy.For(errpolicy.Process),
		passthrough: cfg.Passthrough,
		logger:      cfg.Logger,
	}
}

// Run executes fn under the guard. A panic becomes an error; errors are
// logged and, under the continue rule, swallowed.
func (g *Guard) Run(ctx context.Context, scope string, fn func(ctx context.Context) error) (err error) {
	logger := tracing.LoggerFromContext(ctx, g.logger)

	defer func() {
		if r := recover(); r != nil {
			observability.RecordRecoveredPanic(scope)
			logger.Error().
				Str("scope", scope).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic")
			err = g.settle(logger, scope, fmt.Errorf("panic in %s: %v", scope, r))
		}
	}()

	return g.settle(logger, scope, fn(ctx))
}

func (g *Guard) settle(logger zerolog.Logger, scope string, err error) error {
	if err == nil {
		return nil
	}
	for _, pass := range g.passthrough {
		if errors.Is(err, pass) {
			return err
		}
	}
	if g.rule.Action == errpolicy.Abort {
		return err
	}

	observability.RecordSwallowedError(scope)
	logger.Error().Str("scope", scope).Err(err).Msg("Error swallowed")
	return nil
}
