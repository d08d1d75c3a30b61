package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("should show help", func(t *testing.T) {
		out, err := execute(t, "stop", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "Stop the background worker")
		assert.Contains(t, out, "timeout")
	})

	t.Run("should report a missing worker", func(t *testing.T) {
		configPath, _ := writeConfig(t)

		out, err := execute(t, "stop", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Worker is not running")
	})
}
