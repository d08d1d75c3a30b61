package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harun/orca/internal/config"
	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/gateway"
	"github.com/harun/orca/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBackend struct {
	name  string
	calls int
	mu    sync.Mutex
}

func (b *echoBackend) Name() string { return b.name }

func (b *echoBackend) Complete(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return &gateway.Response{Text: "TASK_COMPLETE"}, nil
}

type captureReporter struct {
	output []string
	errors []string
	mu     sync.Mutex
}

func (r *captureReporter) Output(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = append(r.output, text)
}
func (r *captureReporter) Info(string) {}
func (r *captureReporter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.File = filepath.Join(cfg.DataDir, "orca.log")
	cfg.Browser.ScreenshotDir = filepath.Join(cfg.DataDir, "screenshots")
	return cfg
}

func noCredentials(t *testing.T) []config.Layer {
	t.Helper()
	for _, key := range []string{config.AnthropicKey, config.OpenAIKey, config.GeminiKey} {
		t.Setenv(key, "")
	}
	return []config.Layer{}
}

func TestBuild(t *testing.T) {
	t.Run("should mark providers without credentials unavailable", func(t *testing.T) {
		cfg := testConfig(t)
		a, err := Build(context.Background(), cfg, Options{CredentialLayers: noCredentials(t)})
		require.NoError(t, err)
		defer a.Close()

		providers := a.Gateway.Providers()
		require.Len(t, providers, 2)
		assert.Equal(t, "anthropic", providers[0].Name)
		assert.False(t, providers[0].Available)
		assert.False(t, providers[1].Available)
		assert.Equal(t, session.ModeAutomatic, a.Session.Mode())
	})

	t.Run("should build SDK backends from credential layers", func(t *testing.T) {
		noCredentials(t)
		envFile := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("ANTHROPIC_API_KEY=sk-ant-test\nOPENAI_API_KEY=sk-test\n"), 0600))

		cfg := testConfig(t)
		a, err := Build(context.Background(), cfg, Options{
			CredentialLayers: []config.Layer{{Name: "working-directory", Path: envFile}},
		})
		require.NoError(t, err)
		defer a.Close()

		for _, p := range a.Gateway.Providers() {
			assert.True(t, p.Available, p.Name)
			assert.NotNil(t, p.Backend, p.Name)
		}
		assert.Equal(t, map[string]string{
			"anthropic": "working-directory",
			"openai":    "working-directory",
		}, a.Credentials.Sources())
	})

	t.Run("should register preconfigured tool servers", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Tools.Servers = []config.ServerConfig{{Label: "local", URL: "http://127.0.0.1:8765"}}

		a, err := Build(context.Background(), cfg, Options{CredentialLayers: noCredentials(t)})
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, []string{"local"}, a.Session.Tools.Labels())
	})

	t.Run("should reject an invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Secondary = cfg.Providers.Primary

		_, err := Build(context.Background(), cfg, Options{CredentialLayers: noCredentials(t)})
		assert.Error(t, err)
	})
}

func TestAppChatAndTask(t *testing.T) {
	cfg := testConfig(t)
	primary := &echoBackend{name: "anthropic"}
	report := &captureReporter{}

	a, err := Build(context.Background(), cfg, Options{
		CredentialLayers: noCredentials(t),
		Backends:         map[string]gateway.Backend{"anthropic": primary, "openai": &echoBackend{name: "openai"}},
		Report:           report,
	})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Dispatcher.Dispatch(ctx, "hello there"))
	assert.Equal(t, []string{"TASK_COMPLETE"}, report.output)

	summary, err := a.Loop.RunTask(ctx, "finish at once")
	require.NoError(t, err)
	assert.Contains(t, summary, "DONE")
	assert.Equal(t, 2, primary.calls)

	// the snapshot on disk mirrors the conversation
	data, err := os.ReadFile(cfg.ConversationPath())
	require.NoError(t, err)
	turns, err := conversation.Restore(data)
	require.NoError(t, err)
	assert.Equal(t, a.Session.Conversation.Turns(), turns)
	assert.Empty(t, report.errors)
}
