package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DirName is the per-user data directory under $HOME
	DirName = ".orca"
	// FileName is the default config file inside DirName
	FileName = "orca.json"
	// EnvPrefix prefixes environment overrides, e.g. ORCA_AGENT_MAX_STEPS
	EnvPrefix = "ORCA"

	// error_policy keys are subsystem names such as "agent.loop", so the
	// default "." delimiter cannot be used.
	keyDelimiter = "::"
)

func newViper(path string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	return v
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file. A missing file yields the
// defaults; environment overrides apply either way.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := newViper(configPath)

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := newViper(configPath)

	v.Set("data_dir", cfg.DataDir)
	v.Set("providers", cfg.Providers)
	v.Set("agent", cfg.Agent)
	v.Set("commands", cfg.Commands)
	v.Set("tools", cfg.Tools)
	v.Set("attachments", cfg.Attachments)
	v.Set("browser", cfg.Browser)
	v.Set("shell", cfg.Shell)
	v.Set("daemon", cfg.Daemon)
	v.Set("error_policy", cfg.ErrorPolicy)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DirName, FileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// AutomaticEnv only sees keys viper already knows, so scalar settings are
// bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"data_dir",
		"providers.primary",
		"providers.secondary",
		"providers.default_mode",
		"providers.max_tokens",
		"providers.temperature",
		"agent.max_steps",
		"agent.completion_token",
		"commands.prefix",
		"tools.timeout",
		"attachments.clear_policy",
		"attachments.max_bytes",
		"browser.headless",
		"browser.bin",
		"shell.timeout",
		"daemon.heartbeat",
		"daemon.metrics_addr",
		"logging.level",
		"logging.file",
	} {
		_ = v.BindEnv(strings.ReplaceAll(key, ".", keyDelimiter))
	}
}

func applyPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, DirName)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "orca.log")
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = filepath.Join(cfg.DataDir, "orca.pid")
	}
	if cfg.Daemon.LogFile == "" {
		cfg.Daemon.LogFile = filepath.Join(cfg.DataDir, "daemon.log")
	}
	if cfg.Browser.ScreenshotDir == "" {
		cfg.Browser.ScreenshotDir = filepath.Join(cfg.DataDir, "screenshots")
	}
	return nil
}

// ConversationPath is where the conversation snapshot lives
func (c *Config) ConversationPath() string {
	return filepath.Join(c.DataDir, "conversation.json")
}

// HeartbeatPath is where the worker records its last heartbeat
func (c *Config) HeartbeatPath() string {
	return filepath.Join(c.DataDir, "heartbeat")
}
