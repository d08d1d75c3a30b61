package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should write to the configured console writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Out: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Str("provider", "anthropic").Msg("hello")
		assert.Contains(t, buf.String(), `"provider":"anthropic"`)
		assert.Contains(t, buf.String(), "hello")
	})

	t.Run("should create the log file and its directory", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "orca.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Debug().Msg("debug line")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "debug line")
	})

	t.Run("should redact secrets when enabled", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "orca.log")

		logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)

		logger.Info().Msg("key sk-ant-REDACTED")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[REDACTED]")
		assert.NotContains(t, string(data), "sk-ant-api03")
	})

	t.Run("should fall back to info on an unknown level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "chatty", Console: true, Out: &buf})
		require.NoError(t, err)

		logger.Debug().Msg("hidden")
		logger.Info().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("should install the global logger", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := New(Config{Level: "info", Console: true, Out: &buf})
		require.NoError(t, err)

		log.Info().Msg("via global")
		assert.Contains(t, buf.String(), "via global")
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Out: &buf})
	require.NoError(t, err)

	l := logger.Component("gateway")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"gateway"`)
}
