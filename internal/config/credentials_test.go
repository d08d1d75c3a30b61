package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, key := range []string{AnthropicKey, OpenAIKey, GeminiKey} {
		t.Setenv(key, "")
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Run("should take the first layer defining a key", func(t *testing.T) {
		clearKeys(t)
		layers := []Layer{
			{Name: "working-directory", Path: writeEnv(t, "ANTHROPIC_API_KEY=sk-ant-cwd\n")},
			{Name: "user-global", Path: writeEnv(t, "ANTHROPIC_API_KEY=sk-ant-home\nOPENAI_API_KEY=sk-home\n")},
			{Name: "installation", Path: writeEnv(t, "GEMINI_API_KEY=AIza-install\nOPENAI_API_KEY=sk-install\n")},
		}

		creds, err := ResolveCredentials(layers)
		require.NoError(t, err)

		assert.Equal(t, "sk-ant-cwd", creds.ForProvider("anthropic"))
		assert.Equal(t, "sk-home", creds.ForProvider("openai"))
		assert.Equal(t, "AIza-install", creds.ForProvider("gemini"))
		assert.Equal(t, map[string]string{
			"anthropic": "working-directory",
			"openai":    "user-global",
			"gemini":    "installation",
		}, creds.Sources())
	})

	t.Run("should let the process environment win", func(t *testing.T) {
		clearKeys(t)
		t.Setenv(OpenAIKey, "sk-from-env")
		layers := []Layer{{Name: "working-directory", Path: writeEnv(t, "OPENAI_API_KEY=sk-file\n")}}

		creds, err := ResolveCredentials(layers)
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", creds.ForProvider("openai"))
		assert.Equal(t, SourceEnvironment, creds.Source(OpenAIKey))
	})

	t.Run("should skip missing files", func(t *testing.T) {
		clearKeys(t)
		layers := []Layer{
			{Name: "working-directory", Path: filepath.Join(t.TempDir(), "missing.env")},
			{Name: "user-global", Path: writeEnv(t, "GEMINI_API_KEY=AIza-home\n")},
		}

		creds, err := ResolveCredentials(layers)
		require.NoError(t, err)
		assert.True(t, creds.Has("gemini"))
		assert.False(t, creds.Has("anthropic"))
		assert.Equal(t, []string{GeminiKey}, creds.Keys())
	})

	t.Run("should treat empty values as unset", func(t *testing.T) {
		clearKeys(t)
		layers := []Layer{
			{Name: "working-directory", Path: writeEnv(t, "ANTHROPIC_API_KEY=\n")},
			{Name: "user-global", Path: writeEnv(t, "ANTHROPIC_API_KEY=sk-ant-home\n")},
		}

		creds, err := ResolveCredentials(layers)
		require.NoError(t, err)
		assert.Equal(t, "user-global", creds.Source(AnthropicKey))
	})
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, AnthropicKey, KeyFor("anthropic"))
	assert.Equal(t, OpenAIKey, KeyFor("openai"))
	assert.Equal(t, GeminiKey, KeyFor("gemini"))
	assert.Empty(t, KeyFor("unknown"))
}

func TestDefaultLayers(t *testing.T) {
	layers := DefaultLayers()
	require.NotEmpty(t, layers)
	assert.Equal(t, "working-directory", layers[0].Name)
	for _, l := range layers {
		assert.Equal(t, ".env", filepath.Base(l.Path))
	}
}
