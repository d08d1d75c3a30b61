package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("should capture combined output", func(t *testing.T) {
		h := NewHost(Config{})
		res, err := h.Execute(ctx, ExecuteRequest{Command: "echo out; echo err 1>&2"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, res.Output, "out")
		assert.Contains(t, res.Output, "err")
	})

	t.Run("should report non-zero exit codes without an error", func(t *testing.T) {
		res, err := NewHost(Config{}).Execute(ctx, ExecuteRequest{Command: "exit 3"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.ExitCode)
	})

	t.Run("should run in the configured directory", func(t *testing.T) {
		dir := t.TempDir()
		res, err := NewHost(Config{Dir: dir}).Execute(ctx, ExecuteRequest{Command: "pwd"})
		require.NoError(t, err)
		assert.Contains(t, res.Output, dir)
	})

	t.Run("should time out", func(t *testing.T) {
		res, err := NewHost(Config{}).Execute(ctx, ExecuteRequest{Command: "sleep 5", Timeout: 50 * time.Millisecond})
		assert.ErrorIs(t, err, ErrExecutionTimeout)
		assert.Equal(t, -1, res.ExitCode)
	})

	t.Run("should truncate long output", func(t *testing.T) {
		res, err := NewHost(Config{MaxOutput: 10}).Execute(ctx, ExecuteRequest{Command: "printf 'aaaaaaaaaaaaaaaaaaaa'"})
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.Len(t, res.Output, 10)
	})

	t.Run("should truncate on a rune boundary", func(t *testing.T) {
		out, truncated := truncate("aaé", 3)
		assert.True(t, truncated)
		assert.Equal(t, "aa", out)
	})

	t.Run("should reject empty commands", func(t *testing.T) {
		_, err := NewHost(Config{}).Execute(ctx, ExecuteRequest{Command: "  "})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})
}

func TestExecuteResultFormat(t *testing.T) {
	out := ExecuteResult{Output: "a.txt", ExitCode: 0}.Format("ls")
	assert.True(t, strings.HasPrefix(out, "$ ls\na.txt\n"))
	assert.True(t, strings.HasSuffix(out, "[exit code 0]"))
}
