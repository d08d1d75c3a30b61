package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/orca/pkg/errpolicy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

var errExit = errors.New("exit")

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("should swallow errors under the continue rule", func(t *testing.T) {
		g := NewGuard(GuardConfig{Logger: zerolog.Nop()})
		err := g.Run(ctx, "test", func(context.Context) error {
			return errors.New("boom")
		})
		assert.NoError(t, err)
	})

	t.Run("should recover panics", func(t *testing.T) {
		g := NewGuard(GuardConfig{Logger: zerolog.Nop()})
		assert.NotPanics(t, func() {
			err := g.Run(ctx, "test", func(context.Context) error {
				panic("kaboom")
			})
			assert.NoError(t, err)
		})
	})

	t.Run("should return errors under the abort rule", func(t *testing.T) {
		policy := errpolicy.Default().With(errpolicy.Process, errpolicy.Rule{Action: errpolicy.Abort})
		g := NewGuard(GuardConfig{Policy: policy, Logger: zerolog.Nop()})

		err := g.Run(ctx, "test", func(context.Context) error {
			panic("kaboom")
		})
		assert.ErrorContains(t, err, "panic in test: kaboom")
	})

	t.Run("should pass through sentinel errors", func(t *testing.T) {
		g := NewGuard(GuardConfig{Passthrough: []error{errExit}, Logger: zerolog.Nop()})
		err := g.Run(ctx, "test", func(context.Context) error {
			return errExit
		})
		assert.ErrorIs(t, err, errExit)
	})

	t.Run("should return nil on success", func(t *testing.T) {
		g := NewGuard(GuardConfig{Logger: zerolog.Nop()})
		ran := false
		assert.NoError(t, g.Run(ctx, "test", func(context.Context) error {
			ran = true
			return nil
		}))
		assert.True(t, ran)
	})
}
