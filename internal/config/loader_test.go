package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("should return defaults when the file does not exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Providers.Primary)
		assert.Equal(t, 10, cfg.Agent.MaxSteps)
	})

	t.Run("should load values from file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "orca.json")
		testConfig := `{
			"providers": {"primary": "gemini", "secondary": "anthropic", "default_mode": "primary"},
			"agent": {"max_steps": 4},
			"tools": {"servers": [{"label": "local", "url": "http://127.0.0.1:8765"}]},
			"error_policy": {"agent.loop": {"action": "continue"}}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Providers.Primary)
		assert.Equal(t, "anthropic", cfg.Providers.Secondary)
		assert.Equal(t, "primary", cfg.Providers.DefaultMode)
		assert.Equal(t, 4, cfg.Agent.MaxSteps)
		assert.Equal(t, "TASK_COMPLETE", cfg.Agent.CompletionToken)
		require.Len(t, cfg.Tools.Servers, 1)
		assert.Equal(t, "local", cfg.Tools.Servers[0].Label)
		assert.Equal(t, "continue", cfg.ErrorPolicy["agent.loop"].Action)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should derive paths from the data dir", func(t *testing.T) {
		dataDir := t.TempDir()
		configPath := filepath.Join(t.TempDir(), "orca.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"data_dir": "`+dataDir+`"}`), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dataDir, "orca.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(dataDir, "orca.pid"), cfg.Daemon.PIDFile)
		assert.Equal(t, filepath.Join(dataDir, "conversation.json"), cfg.ConversationPath())
		assert.Equal(t, filepath.Join(dataDir, "heartbeat"), cfg.HeartbeatPath())
	})

	t.Run("should apply environment overrides", func(t *testing.T) {
		t.Setenv("ORCA_AGENT_MAX_STEPS", "7")
		t.Setenv("ORCA_PROVIDERS_PRIMARY", "gemini")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Agent.MaxSteps)
		assert.Equal(t, "gemini", cfg.Providers.Primary)
	})

	t.Run("should fail on invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "orca.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Agent.MaxSteps = 3
	cfg.Providers.Secondary = "gemini"
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Agent.MaxSteps)
	assert.Equal(t, "gemini", loaded.Providers.Secondary)
}
