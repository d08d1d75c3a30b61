package config

import (
	"fmt"
	"strings"

	"github.com/harun/orca/pkg/errpolicy"
)

// Config represents the main orca configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Providers
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Agent loop
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Commands
	Commands CommandsConfig `json:"commands" mapstructure:"commands"`

	// Remote tool servers
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Attachments
	Attachments AttachmentsConfig `json:"attachments" mapstructure:"attachments"`

	// Browser capability
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Shell capability
	Shell ShellConfig `json:"shell" mapstructure:"shell"`

	// Daemon
	Daemon DaemonConfig `json:"daemon" mapstructure:"daemon"`

	// Error policy overrides by subsystem
	ErrorPolicy map[string]errpolicy.RawRule `json:"error_policy" mapstructure:"error_policy"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ProvidersConfig selects the two backends and how they are called
type ProvidersConfig struct {
	Primary     string            `json:"primary" mapstructure:"primary"`     // anthropic, openai, gemini
	Secondary   string            `json:"secondary" mapstructure:"secondary"` // anthropic, openai, gemini
	DefaultMode string            `json:"default_mode" mapstructure:"default_mode"`
	Models      map[string]string `json:"models" mapstructure:"models"`
	MaxTokens   int               `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64           `json:"temperature" mapstructure:"temperature"`
}

// Model returns the configured model for a provider
func (p ProvidersConfig) Model(provider string) string {
	return p.Models[provider]
}

// AgentConfig holds agent loop settings
type AgentConfig struct {
	MaxSteps        int    `json:"max_steps" mapstructure:"max_steps"`
	CompletionToken string `json:"completion_token" mapstructure:"completion_token"`
}

// CommandsConfig holds command surface settings
type CommandsConfig struct {
	Prefix string `json:"prefix" mapstructure:"prefix"`
}

// ToolsConfig holds tool client settings
type ToolsConfig struct {
	Timeout int            `json:"timeout" mapstructure:"timeout"` // seconds
	Servers []ServerConfig `json:"servers" mapstructure:"servers"`
}

// ServerConfig is a tool server registered at startup
type ServerConfig struct {
	Label string `json:"label" mapstructure:"label"`
	URL   string `json:"url" mapstructure:"url"`
}

// AttachmentsConfig holds image attachment settings
type AttachmentsConfig struct {
	ClearPolicy string `json:"clear_policy" mapstructure:"clear_policy"` // always, on_success
	MaxBytes    int64  `json:"max_bytes" mapstructure:"max_bytes"`
}

// BrowserConfig holds browser settings
type BrowserConfig struct {
	Headless      bool   `json:"headless" mapstructure:"headless"`
	Bin           string `json:"bin" mapstructure:"bin"`
	Timeout       int    `json:"timeout" mapstructure:"timeout"` // seconds
	SearchEngine  string `json:"search_engine" mapstructure:"search_engine"`
	ScreenshotDir string `json:"screenshot_dir" mapstructure:"screenshot_dir"`
}

// ShellConfig holds shell settings
type ShellConfig struct {
	Timeout   int    `json:"timeout" mapstructure:"timeout"` // seconds
	Shell     string `json:"shell" mapstructure:"shell"`
	MaxOutput int    `json:"max_output" mapstructure:"max_output"` // bytes
}

// DaemonConfig holds worker settings
type DaemonConfig struct {
	Heartbeat   string `json:"heartbeat" mapstructure:"heartbeat"` // cron spec
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`
	PIDFile     string `json:"pid_file" mapstructure:"pid_file"`
	LogFile     string `json:"log_file" mapstructure:"log_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Primary:     "anthropic",
			Secondary:   "openai",
			DefaultMode: "automatic",
			Models: map[string]string{
				"anthropic": "claude-sonnet-4-20250514",
				"openai":    "gpt-4o",
				"gemini":    "gemini-1.5-pro",
			},
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxSteps:        10,
			CompletionToken: "TASK_COMPLETE",
		},
		Commands: CommandsConfig{
			Prefix: "/",
		},
		Tools: ToolsConfig{
			Timeout: 30,
			Servers: []ServerConfig{},
		},
		Attachments: AttachmentsConfig{
			ClearPolicy: "always",
			MaxBytes:    5 << 20,
		},
		Browser: BrowserConfig{
			Headless:     true,
			Timeout:      30,
			SearchEngine: "https://html.duckduckgo.com/html/?q=",
		},
		Shell: ShellConfig{
			Timeout:   60,
			MaxOutput: 64 << 10,
		},
		Daemon: DaemonConfig{
			Heartbeat: "@every 30s",
		},
		ErrorPolicy: map[string]errpolicy.RawRule{},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
}

// Policy builds the error-policy table from the overrides
func (c *Config) Policy() (errpolicy.Table, error) {
	return errpolicy.Parse(c.ErrorPolicy)
}
